package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidCredentials hides whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrInvalidRole indicates a role other than admin or viewer.
	ErrInvalidRole = errors.New("users: invalid role")
	// ErrInvalidOperator indicates a blank username or a password shorter than MinPasswordLength.
	ErrInvalidOperator = errors.New("users: invalid operator")
)

// MinPasswordLength is the shortest password Upsert accepts.
const MinPasswordLength = 8

// ServiceConfig describes the dependencies required for operator management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Cost     int
}

// Service stores operator accounts and checks their passwords.
type Service struct {
	db   *gorm.DB
	now  func() time.Time
	cost int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{db: cfg.Database, now: clock, cost: cost}, nil
}

// Upsert creates the operator or replaces its password and role.
func (s *Service) Upsert(ctx context.Context, username, password string, role Role) (Operator, error) {
	username = normalizeUsername(username)
	if username == "" || len(password) < MinPasswordLength {
		return Operator{}, ErrInvalidOperator
	}
	if _, err := ParseRole(string(role)); err != nil {
		return Operator{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Operator{}, fmt.Errorf("users: hash password: %w", err)
	}
	operator := Operator{Username: username, PasswordHash: string(hash), Role: role}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"password_hash", "role", "updated_at"}),
		}).
		Create(&operator).
		Error
	if err != nil {
		return Operator{}, err
	}
	return operator, nil
}

// Authenticate returns the operator when password matches and records the login time.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Operator, error) {
	var operator Operator
	err := s.db.WithContext(ctx).
		Where("username = ?", normalizeUsername(username)).
		First(&operator).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Operator{}, ErrInvalidCredentials
	}
	if err != nil {
		return Operator{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(password)) != nil {
		return Operator{}, ErrInvalidCredentials
	}

	operator.LastLoginAt = s.now().UTC()
	_ = s.db.WithContext(ctx).
		Model(&Operator{}).
		Where("username = ?", operator.Username).
		Update("last_login_at", operator.LastLoginAt).
		Error
	return operator, nil
}

// Count reports how many operators exist.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Operator{}).Count(&count).Error
	return count, err
}
