package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/models"
)

// RideTracker keeps one student's active ride live.
type RideTracker struct {
	store   backend.Store
	timeout time.Duration
	log     *logrus.Entry

	mu   sync.Mutex
	live *liveQuery[*models.Ride]
}

func NewRideTracker(store backend.Store, timeout time.Duration, log *logrus.Entry) *RideTracker {
	if log == nil {
		log = logrus.WithField("component", "ride_tracker")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RideTracker{store: store, timeout: timeout, log: log}
}

// Track delivers the user's most recent active ride (nil when there is
// none) and re-delivers it after every change to that user's rides. An
// empty userID makes Track a no-op: no query and no subscription.
// A RideTracker tracks one user; build a new one per session.
func (t *RideTracker) Track(ctx context.Context, userID string, onUpdate func(*models.Ride)) (func(), error) {
	if userID == "" {
		return func() {}, nil
	}
	t.mu.Lock()
	if t.live != nil {
		t.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	log := t.log.WithField("user_id", userID)
	live := &liveQuery[*models.Ride]{
		log:     log,
		timeout: t.timeout,
		fetch: func(ctx context.Context) (*models.Ride, error) {
			return ActiveRide(ctx, t.store, userID)
		},
		degrade: func(error) *models.Ride { return nil },
	}
	t.live = live
	t.mu.Unlock()

	owner := backend.Eq("student_id", userID)
	return live.start(ctx, onUpdate, func(ctx context.Context, listener func(backend.Change)) (func(), error) {
		return t.store.SubscribeChanges(ctx, RidesTable, &owner, listener)
	})
}

// Refresh re-fetches the tracked ride; used after starting a ride.
func (t *RideTracker) Refresh(ctx context.Context) {
	t.mu.Lock()
	live := t.live
	t.mu.Unlock()
	if live != nil {
		live.refresh(ctx)
	}
}

// ActiveRide returns the user's most recent active ride, or nil. If the
// backend holds more than one active ride only the newest is returned.
func ActiveRide(ctx context.Context, store backend.Querier, userID string) (*models.Ride, error) {
	var rides []models.Ride
	q := backend.Query{
		Table: RidesTable,
		Filters: []backend.Filter{
			backend.Eq("student_id", userID),
			backend.Eq("status", string(models.RideActive)),
		},
		Order: &backend.Order{Column: "created_at", Descending: true},
		Limit: 1,
	}
	if err := store.Query(ctx, q, &rides); err != nil {
		return nil, err
	}
	if len(rides) == 0 {
		return nil, nil
	}
	return &rides[0], nil
}
