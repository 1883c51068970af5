package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/models"
)

// Snapshot is everything the student home screen renders.
type Snapshot struct {
	Session    SessionState
	Shuttles   []models.Shuttle
	ActiveRide *models.Ride
}

type DashboardOptions struct {
	Timeout      time.Duration
	DemoShuttles bool
	Log          *logrus.Entry
}

// Dashboard wires the session, the shuttle feed and the ride tracker
// together. Ride tracking starts once per sign-in and stops on sign-out.
type Dashboard struct {
	backend  backend.Backend
	session  *SessionTracker
	feed     *ShuttleFeed
	rides    *Rides
	timeout  time.Duration
	log      *logrus.Entry
	onChange func(Snapshot)

	mu          sync.Mutex
	ctx         context.Context
	snap        Snapshot
	trackedUser string
	tracker     *RideTracker
	cancelRide  func()
	trackCalls  int
}

func NewDashboard(b backend.Backend, opts DashboardOptions) *Dashboard {
	log := opts.Log
	if log == nil {
		log = logrus.WithField("component", "dashboard")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dashboard{
		backend: b,
		session: NewSessionTracker(b, b, timeout, log.WithField("component", "session")),
		feed: NewShuttleFeed(b, FeedOptions{
			Timeout:      timeout,
			DemoShuttles: opts.DemoShuttles,
			Log:          log.WithField("component", "shuttle_feed"),
		}),
		rides:   NewRides(b),
		timeout: timeout,
		log:     log,
	}
}

// Session exposes the session tracker, e.g. for guest mode.
func (d *Dashboard) Session() *SessionTracker {
	return d.session
}

// Start begins following the session and the shuttle feed. onChange gets
// a fresh snapshot after every update.
func (d *Dashboard) Start(ctx context.Context, onChange func(Snapshot)) (func(), error) {
	d.mu.Lock()
	d.ctx = ctx
	d.onChange = onChange
	d.mu.Unlock()

	unobserve := d.session.Observe(d.onSession)
	stopSession, err := d.session.Start(ctx)
	if err != nil {
		unobserve()
		return nil, err
	}
	stopFeed, err := d.feed.Start(ctx, d.onShuttles)
	if err != nil {
		// The first list was delivered; only live updates are missing.
		d.log.WithError(err).Warn("Shuttle feed running without live updates")
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			stopSession()
			unobserve()
			if stopFeed != nil {
				stopFeed()
			}
			d.mu.Lock()
			cancel := d.cancelRide
			d.cancelRide = nil
			d.tracker = nil
			d.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		})
	}, nil
}

// Snapshot returns the latest state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

// TrackCalls reports how many times ride tracking was started.
func (d *Dashboard) TrackCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trackCalls
}

// StartRide boards the shuttle with the given code for the signed-in user
// and refreshes the tracked ride.
func (d *Dashboard) StartRide(ctx context.Context, code string) (*models.Ride, error) {
	userID := d.session.Current().UserID
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ride, err := d.rides.StartRide(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	d.refreshRide(ctx)
	return ride, nil
}

// CompleteRide ends the active ride on the backend.
func (d *Dashboard) CompleteRide(ctx context.Context) (*models.Ride, error) {
	d.mu.Lock()
	userID := d.snap.Session.UserID
	var rideID string
	if d.snap.ActiveRide != nil {
		rideID = d.snap.ActiveRide.ID
	}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ride, err := d.rides.CompleteRide(ctx, userID, rideID)
	if err != nil {
		return nil, err
	}
	d.refreshRide(ctx)
	return ride, nil
}

// Refresh re-fetches shuttles and the active ride (pull to refresh).
func (d *Dashboard) Refresh(ctx context.Context) {
	d.feed.Refresh(ctx)
	d.refreshRide(ctx)
}

func (d *Dashboard) refreshRide(ctx context.Context) {
	d.mu.Lock()
	t := d.tracker
	d.mu.Unlock()
	if t != nil {
		t.Refresh(ctx)
	}
}

func (d *Dashboard) onSession(s SessionState) {
	d.mu.Lock()
	d.snap.Session = s
	if s.UserID == d.trackedUser {
		d.mu.Unlock()
		d.emit()
		return
	}
	prevCancel := d.cancelRide
	d.trackedUser = s.UserID
	d.cancelRide = nil
	d.tracker = nil
	d.snap.ActiveRide = nil
	ctx := d.ctx
	d.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}

	if s.UserID != "" {
		t := NewRideTracker(d.backend, d.timeout, d.log.WithField("component", "ride_tracker"))
		d.mu.Lock()
		d.tracker = t
		d.trackCalls++
		d.mu.Unlock()

		userID := s.UserID
		cancel, err := t.Track(ctx, userID, func(r *models.Ride) { d.onRide(userID, r) })
		if err != nil {
			d.log.WithError(err).WithField("user_id", userID).Warn("Ride tracking running without live updates")
		}

		d.mu.Lock()
		if d.trackedUser == userID {
			d.cancelRide = cancel
			cancel = nil
		}
		d.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
	d.emit()
}

func (d *Dashboard) onRide(userID string, r *models.Ride) {
	d.mu.Lock()
	if d.trackedUser != userID {
		d.mu.Unlock()
		return
	}
	d.snap.ActiveRide = r
	d.mu.Unlock()
	d.emit()
}

func (d *Dashboard) onShuttles(list []models.Shuttle) {
	d.mu.Lock()
	d.snap.Shuttles = list
	d.mu.Unlock()
	d.emit()
}

func (d *Dashboard) emit() {
	d.mu.Lock()
	fn := d.onChange
	snap := d.snap
	d.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
