package tracker

import (
	"context"
	"fmt"
	"strings"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/models"
)

// VehicleCodeLength is the number of digits in a vehicle code.
const VehicleCodeLength = 4

// NormalizeVehicleCode keeps the digits of input and returns the rightmost
// four of them. Fewer than four digits is a validation error.
func NormalizeVehicleCode(input string) (string, error) {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < VehicleCodeLength {
		return "", invalid("vehicle_code", "Enter 4-digit vehicle code")
	}
	return digits[len(digits)-VehicleCodeLength:], nil
}

// IsVehicleCode reports whether s is exactly four ASCII digits.
func IsVehicleCode(s string) bool {
	if len(s) != VehicleCodeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Rides starts and completes rides for a student. It does not check that
// the vehicle code belongs to an active shuttle.
type Rides struct {
	store backend.Store
}

func NewRides(store backend.Store) *Rides {
	return &Rides{store: store}
}

// StartRide validates the code and inserts an active ride for userID.
func (r *Rides) StartRide(ctx context.Context, userID, code string) (*models.Ride, error) {
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	normalized, err := NormalizeVehicleCode(code)
	if err != nil {
		return nil, err
	}

	ride := models.Ride{
		StudentID:   userID,
		VehicleCode: normalized,
		Status:      models.RideActive,
	}
	var created models.Ride
	if err := r.store.Insert(ctx, RidesTable, rideInsert(ride), &created); err != nil {
		return nil, fmt.Errorf("failed to start ride: %w", err)
	}
	return &created, nil
}

// CompleteRide marks the ride completed on the backend, so a cancelled ride
// stops being reported as active.
func (r *Rides) CompleteRide(ctx context.Context, userID, rideID string) (*models.Ride, error) {
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	if rideID == "" {
		return nil, invalid("ride_id", "No ride to complete")
	}
	var updated []models.Ride
	filters := []backend.Filter{backend.Eq("id", rideID), backend.Eq("student_id", userID)}
	patch := map[string]any{"status": string(models.RideCompleted)}
	if err := r.store.Update(ctx, RidesTable, filters, patch, &updated); err != nil {
		return nil, fmt.Errorf("failed to complete ride: %w", err)
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("ride %s: %w", rideID, backend.ErrNotFound)
	}
	return &updated[0], nil
}

// rideInsert is the insert payload; id and created_at are left to the backend.
func rideInsert(r models.Ride) map[string]any {
	return map[string]any{
		"student_id":   r.StudentID,
		"vehicle_code": r.VehicleCode,
		"status":       string(r.Status),
	}
}
