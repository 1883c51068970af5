// internal/models/profile.go
package models

import (
	"time"
)

// UserRole distinguishes students from drivers.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleDriver  UserRole = "driver"
)

// ParseRole maps a stored user_type to a role. ok is false for unknown values.
func ParseRole(s string) (role UserRole, ok bool) {
	switch UserRole(s) {
	case RoleStudent, RoleDriver:
		return UserRole(s), true
	}
	return "", false
}

// Profile is the public record of a user; ID equals the account ID.
type Profile struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey"`
	UserType      UserRole  `json:"user_type" gorm:"not null"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone"`
	LicenseNumber string    `json:"license_number,omitempty"` // drivers only
	UpdatedAt     time.Time `json:"updated_at"`
}
