package records

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the derived completion state of a maintenance record.
type Status string

const (
	// StatusCompleted marks a visit without outstanding work.
	StatusCompleted Status = "Concluído"
	// StatusPending marks a visit with outstanding work recorded in Pendencia.
	StatusPending Status = "Pendente"
)

// ServiceType enumerates the kinds of technician visits.
type ServiceType string

const (
	ServiceCorrective           ServiceType = "Corretiva"
	ServicePreventive           ServiceType = "Preventiva"
	ServiceCorrectivePreventive ServiceType = "Corretiva/Preventiva"
	ServiceInstallation         ServiceType = "Obra/Instalação"
)

// ServiceTypes lists every accepted service type.
var ServiceTypes = []ServiceType{
	ServiceCorrective,
	ServicePreventive,
	ServiceCorrectivePreventive,
	ServiceInstallation,
}

// ComponentType is one of the replaceable refrigeration parts.
type ComponentType string

// ComponentTypes lists every part name a replacement record may carry.
var ComponentTypes = []ComponentType{
	"Compressor",
	"Contatora",
	"Disjuntor",
	"Microcontrolador",
	"Microventilador",
	"Pressostato de Alta Pressão",
	"Relé",
	"Relé de Contato de Contatora",
	"Relé Falta de Fase",
	"Resistência de Degelo",
	"Resistência do Evaporador",
	"Tubulação",
	"Válvula de Expansão Eletrônica",
	"Ventilador do Condensador",
	"Ventilador do Evaporador",
}

var (
	// ErrRecordNotFound indicates that no record carries the requested identifier.
	ErrRecordNotFound = errors.New("records: record not found")
	// ErrInvalidDate indicates a date value that is neither RFC 3339 nor YYYY-MM-DD.
	ErrInvalidDate = errors.New("records: invalid date")
)

const dayLayout = "2006-01-02"

// Date is a calendar timestamp serialized as an RFC 3339 UTC string.
// Decoding also accepts a bare YYYY-MM-DD, which older documents used.
type Date struct {
	time.Time
}

// NewDate wraps t as a Date normalized to UTC.
func NewDate(t time.Time) Date {
	return Date{Time: t.UTC()}
}

// ParseDate parses RFC 3339 or YYYY-MM-DD input.
func ParseDate(raw string) (Date, error) {
	trimmed := strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return NewDate(parsed), nil
	}
	if parsed, err := time.Parse(dayLayout, trimmed); err == nil {
		return NewDate(parsed), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

// MarshalJSON renders the date as an RFC 3339 string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.UTC().Format(time.RFC3339Nano) + `"`), nil
}

// UnmarshalJSON accepts RFC 3339 and YYYY-MM-DD strings.
func (d *Date) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*d = Date{}
		return nil
	}
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrInvalidDate, raw)
	}
	parsed, err := ParseDate(raw[1 : len(raw)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MaintenanceRecord is one technician visit. JSON keys match the shared document.
type MaintenanceRecord struct {
	ID                       int         `json:"ID"`
	Date                     Date        `json:"Data"`
	StartTime                string      `json:"HoraInicio"`
	EndTime                  string      `json:"HoraFim"`
	Service                  ServiceType `json:"Serviço" validate:"servicetype"`
	MaintenanceSpecification string      `json:"Especificação da Manutenção"`
	Equipment                string      `json:"Equipamento"`
	EquipmentSpecification   string      `json:"Especificação do Equipamento"`
	Team                     string      `json:"Equipe"`
	Location                 string      `json:"Local"`
	Client                   string      `json:"Cliente" validate:"required"`
	Notes                    string      `json:"OBS"`
	Pending                  string      `json:"Pendencia"`
	Gas                      string      `json:"Gás"`
	Status                   Status      `json:"Status"`
}

// ComponentReplacementRecord is one replaced part at a client site.
type ComponentReplacementRecord struct {
	ID        int           `json:"ID"`
	Date      Date          `json:"Data"`
	Client    string        `json:"Cliente" validate:"required"`
	Component ComponentType `json:"Componente" validate:"component"`
	Notes     string        `json:"OBS"`
}

// DeriveStatus reports Pending iff the pending-work text is non-blank.
func DeriveStatus(pending string) Status {
	if strings.TrimSpace(pending) != "" {
		return StatusPending
	}
	return StatusCompleted
}

// Normalize recomputes derived fields. It must run after every create, update and decode.
func (r MaintenanceRecord) Normalize() MaintenanceRecord {
	r.Status = DeriveStatus(r.Pending)
	return r
}

// Identifier returns the record identifier.
func (r MaintenanceRecord) Identifier() int {
	return r.ID
}

// Timestamp returns the record date used for ordering.
func (r MaintenanceRecord) Timestamp() time.Time {
	return r.Date.Time
}

// WithID returns a copy carrying id.
func (r MaintenanceRecord) WithID(id int) MaintenanceRecord {
	r.ID = id
	return r
}

// Equal reports whether both records carry identical content.
func (r MaintenanceRecord) Equal(other MaintenanceRecord) bool {
	return r.ID == other.ID &&
		r.Date.Equal(other.Date.Time) &&
		r.StartTime == other.StartTime &&
		r.EndTime == other.EndTime &&
		r.Service == other.Service &&
		r.MaintenanceSpecification == other.MaintenanceSpecification &&
		r.Equipment == other.Equipment &&
		r.EquipmentSpecification == other.EquipmentSpecification &&
		r.Team == other.Team &&
		r.Location == other.Location &&
		r.Client == other.Client &&
		r.Notes == other.Notes &&
		r.Pending == other.Pending &&
		r.Gas == other.Gas &&
		r.Status == other.Status
}

// Identifier returns the record identifier.
func (r ComponentReplacementRecord) Identifier() int {
	return r.ID
}

// Timestamp returns the record date used for ordering.
func (r ComponentReplacementRecord) Timestamp() time.Time {
	return r.Date.Time
}

// WithID returns a copy carrying id.
func (r ComponentReplacementRecord) WithID(id int) ComponentReplacementRecord {
	r.ID = id
	return r
}

// Equal reports whether both records carry identical content.
func (r ComponentReplacementRecord) Equal(other ComponentReplacementRecord) bool {
	return r.ID == other.ID &&
		r.Date.Equal(other.Date.Time) &&
		r.Client == other.Client &&
		r.Component == other.Component &&
		r.Notes == other.Notes
}

// Document is the shared JSON document held by the remote store.
type Document struct {
	MaintenanceRecords    []MaintenanceRecord          `json:"maintenanceRecords"`
	ComponentReplacements []ComponentReplacementRecord `json:"componentReplacements"`
}

// Normalize recomputes derived fields and replaces nil collections with empty ones.
func (d Document) Normalize() Document {
	maintenance := make([]MaintenanceRecord, len(d.MaintenanceRecords))
	for index, record := range d.MaintenanceRecords {
		maintenance[index] = record.Normalize()
	}
	components := make([]ComponentReplacementRecord, len(d.ComponentReplacements))
	copy(components, d.ComponentReplacements)
	return Document{
		MaintenanceRecords:    maintenance,
		ComponentReplacements: components,
	}
}
