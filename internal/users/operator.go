package users

import (
	"strings"
	"time"
)

// Role grants either full access or read-only access to the records.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// ParseRole accepts admin or viewer in any case.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(normalize(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleViewer:
		return RoleViewer, nil
	default:
		return "", ErrInvalidRole
	}
}

// Operator is a dashboard account.
type Operator struct {
	Username     string    `gorm:"column:username;primaryKey;size:64;not null"`
	PasswordHash string    `gorm:"column:password_hash;size:100;not null"`
	Role         Role      `gorm:"column:role;size:16;not null"`
	LastLoginAt  time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing operator accounts.
func (Operator) TableName() string {
	return "operators"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeUsername(value string) string {
	return strings.ToLower(normalize(value))
}
