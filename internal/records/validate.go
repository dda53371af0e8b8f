package records

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRecord wraps every validation failure.
var ErrInvalidRecord = errors.New("records: invalid record")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("servicetype", func(field validator.FieldLevel) bool {
			value := ServiceType(field.Field().String())
			for _, candidate := range ServiceTypes {
				if value == candidate {
					return true
				}
			}
			return false
		})
		_ = validate.RegisterValidation("component", func(field validator.FieldLevel) bool {
			value := ComponentType(field.Field().String())
			for _, candidate := range ComponentTypes {
				if value == candidate {
					return true
				}
			}
			return false
		})
	})
	return validate
}

// ValidateMaintenance checks an incoming maintenance draft.
func ValidateMaintenance(record MaintenanceRecord) error {
	if err := checkTime(record.StartTime); err != nil {
		return err
	}
	if err := checkTime(record.EndTime); err != nil {
		return err
	}
	return translate(validatorInstance().Struct(record))
}

// ValidateComponent checks an incoming replacement draft.
func ValidateComponent(record ComponentReplacementRecord) error {
	return translate(validatorInstance().Struct(record))
}

func checkTime(value string) error {
	if value == "" {
		return nil
	}
	if err := validatorInstance().Var(value, "datetime=15:04"); err != nil {
		return fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidRecord, value)
	}
	return nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		switch fieldError.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", fieldError.Field()))
		case "servicetype":
			messages = append(messages, fmt.Sprintf("%s must be one of the service types", fieldError.Field()))
		case "component":
			messages = append(messages, fmt.Sprintf("%s must be one of the component types", fieldError.Field()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s", fieldError.Field(), fieldError.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(messages, "; "))
}
