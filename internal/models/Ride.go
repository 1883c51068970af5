package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RideStatus is the lifecycle state of a ride row.
type RideStatus string

const (
	RideActive    RideStatus = "active"
	RideCompleted RideStatus = "completed"
)

type Ride struct {
	ID          string     `json:"id" gorm:"type:uuid;primaryKey"`
	StudentID   string     `json:"student_id" gorm:"type:uuid;index;not null"`
	VehicleCode string     `json:"vehicle_code" gorm:"size:4;not null"` // always 4 digits, zero padded
	Status      RideStatus `json:"status" gorm:"index;default:active"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
}

func (r *Ride) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = RideActive
	}
	return nil
}

// IsActive reports whether the ride is still in progress.
func (r Ride) IsActive() bool {
	return r.Status == RideActive
}
