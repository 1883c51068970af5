// internal/models/shuttle.go
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RouteType is the route category a shuttle runs on.
type RouteType string

const (
	RouteRegular    RouteType = "regular"
	RouteMensHostel RouteType = "mens_hostel" // the alternate route
)

// Label is the human readable route name shown next to a marker.
func (r RouteType) Label() string {
	if r == RouteMensHostel {
		return "Mens Hostel"
	}
	return "Regular"
}

// ParseRouteType accepts the stored route names; empty means regular.
func ParseRouteType(s string) (RouteType, bool) {
	switch RouteType(strings.ToLower(strings.TrimSpace(s))) {
	case "", RouteRegular:
		return RouteRegular, true
	case RouteMensHostel:
		return RouteMensHostel, true
	}
	return "", false
}

// DefaultTotalSeats is assumed when a row carries no usable seat capacity.
const DefaultTotalSeats = 22

type Shuttle struct {
	ID            string    `json:"id" gorm:"type:uuid;primaryKey"`
	VehicleNumber string    `json:"vehicle_number" gorm:"size:4;uniqueIndex;not null"`
	RouteType     RouteType `json:"route_type" gorm:"default:regular"`
	CurrentSeats  int       `json:"current_seats" gorm:"default:0"`
	TotalSeats    int       `json:"total_seats" gorm:"default:22"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	IsActive      bool      `json:"is_active" gorm:"index"`
	DriverID      *string   `json:"driver_id" gorm:"type:uuid;index"` // profile of the driver operating it
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Shuttle) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Capacity returns the seat capacity, falling back to DefaultTotalSeats.
func (s Shuttle) Capacity() int {
	if s.TotalSeats <= 0 {
		return DefaultTotalSeats
	}
	return s.TotalSeats
}

// IsFull reports whether every seat is taken. Backends may report more
// occupied seats than capacity; that still counts as full.
func (s Shuttle) IsFull() bool {
	return s.CurrentSeats >= s.Capacity()
}

// SeatsLabel renders occupancy as "12/22 seats".
func (s Shuttle) SeatsLabel() string {
	return fmt.Sprintf("%d/%d seats", s.CurrentSeats, s.Capacity())
}

// DisplayCode is the vehicle number left padded to four digits.
func (s Shuttle) DisplayCode() string {
	if n := len(s.VehicleNumber); n < 4 {
		return strings.Repeat("0", 4-n) + s.VehicleNumber
	}
	return s.VehicleNumber
}
