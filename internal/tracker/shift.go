package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/geo"
	"campus_shuttle/internal/models"
)

const (
	// MinReportDistance is how far (meters) a shuttle must move before its
	// position is written again.
	MinReportDistance = 5.0
	// ReportHeartbeat forces a write even without movement.
	ReportHeartbeat = 60 * time.Second
)

type reportedPosition struct {
	lat, lon float64
	at       time.Time
}

// Shift lets a driver go on and off duty and report the shuttle position.
type Shift struct {
	store   backend.Store
	timeout time.Duration
	log     *logrus.Entry
	now     func() time.Time

	mu   sync.Mutex
	last map[string]reportedPosition
}

func NewShift(store backend.Store, timeout time.Duration, log *logrus.Entry) *Shift {
	if log == nil {
		log = logrus.WithField("component", "shift")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Shift{
		store:   store,
		timeout: timeout,
		log:     log,
		now:     time.Now,
		last:    make(map[string]reportedPosition),
	}
}

// Shuttle returns the shuttle assigned to the driver.
func (s *Shift) Shuttle(ctx context.Context, driverID string) (*models.Shuttle, error) {
	if driverID == "" {
		return nil, ErrNotSignedIn
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var shuttles []models.Shuttle
	q := backend.Query{
		Table:   ShuttlesTable,
		Filters: []backend.Filter{backend.Eq("driver_id", driverID)},
		Limit:   1,
	}
	if err := s.store.Query(ctx, q, &shuttles); err != nil {
		return nil, fmt.Errorf("failed to load shuttle: %w", err)
	}
	if len(shuttles) == 0 {
		return nil, ErrNoShuttle
	}
	return &shuttles[0], nil
}

// SetOnDuty starts or ends the driver's shift by flipping is_active on
// their shuttle. Students see the change through the shuttle feed.
func (s *Shift) SetOnDuty(ctx context.Context, driverID string, onDuty bool) (*models.Shuttle, error) {
	shuttle, err := s.update(ctx, driverID, map[string]any{"is_active": onDuty})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"driver_id":      driverID,
		"vehicle_number": shuttle.VehicleNumber,
		"on_duty":        onDuty,
	}).Info("Shift status changed")
	return shuttle, nil
}

// ReportPosition writes the shuttle position when it moved at least
// MinReportDistance since the last write, or ReportHeartbeat has passed.
// reported is false when the update was skipped.
func (s *Shift) ReportPosition(ctx context.Context, driverID string, lat, lon float64) (reported bool, err error) {
	if err := geo.ValidateCoordinates(lat, lon); err != nil {
		return false, invalid("position", err.Error())
	}
	now := s.now()

	s.mu.Lock()
	prev, seen := s.last[driverID]
	s.mu.Unlock()

	if seen {
		moved := geo.Distance(prev.lat, prev.lon, lat, lon)
		if moved < MinReportDistance && now.Sub(prev.at) < ReportHeartbeat {
			s.log.WithFields(logrus.Fields{
				"driver_id":  driverID,
				"distance_m": fmt.Sprintf("%.2f", moved),
			}).Debug("Position received - no significant change")
			return false, nil
		}
	}

	if _, err := s.update(ctx, driverID, map[string]any{"latitude": lat, "longitude": lon}); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.last[driverID] = reportedPosition{lat: lat, lon: lon, at: now}
	s.mu.Unlock()
	return true, nil
}

func (s *Shift) update(ctx context.Context, driverID string, patch map[string]any) (*models.Shuttle, error) {
	if driverID == "" {
		return nil, ErrNotSignedIn
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var updated []models.Shuttle
	filters := []backend.Filter{backend.Eq("driver_id", driverID)}
	if err := s.store.Update(ctx, ShuttlesTable, filters, patch, &updated); err != nil {
		return nil, fmt.Errorf("failed to update shuttle: %w", err)
	}
	if len(updated) == 0 {
		return nil, ErrNoShuttle
	}
	return &updated[0], nil
}
