package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an auth account. It never leaves the server; clients see the
// session built from it.
type User struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey"`
	Email         string    `json:"email" gorm:"uniqueIndex;not null"`
	Password      string    `json:"-"`
	UserType      UserRole  `json:"user_type"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone"`
	LicenseNumber string    `json:"license_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Metadata is the user_metadata map carried in sessions.
func (u User) Metadata() map[string]string {
	md := map[string]string{
		"user_type": string(u.UserType),
		"full_name": u.FullName,
		"phone":     u.Phone,
	}
	if u.LicenseNumber != "" {
		md["license_number"] = u.LicenseNumber
	}
	return md
}
