package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/models"
)

// SessionState is what the rest of the app knows about the user.
type SessionState struct {
	UserID string
	Email  string
	Role   models.UserRole
	Guest  bool
}

// SignedIn reports whether a backend user is present.
func (s SessionState) SignedIn() bool {
	return s.UserID != ""
}

// Authenticated reports whether the app may leave the sign-in screen;
// guests count as authenticated.
func (s SessionState) Authenticated() bool {
	return s.SignedIn() || s.Guest
}

// SessionTracker follows the backend's auth state and tells observers
// about every transition, synchronously and in order.
type SessionTracker struct {
	auth    backend.Auth
	store   backend.Store
	timeout time.Duration
	log     *logrus.Entry

	applyMu     sync.Mutex // orders state transitions and observer calls
	transitions int        // auth events applied; guarded by applyMu
	mu          sync.Mutex
	state   SessionState
	nextObs int
	obs     map[int]func(SessionState)
	unsub   func()
}

func NewSessionTracker(auth backend.Auth, store backend.Store, timeout time.Duration, log *logrus.Entry) *SessionTracker {
	if log == nil {
		log = logrus.WithField("component", "session")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SessionTracker{
		auth:    auth,
		store:   store,
		timeout: timeout,
		log:     log,
		state:   SessionState{},
		obs:     make(map[int]func(SessionState)),
	}
}

// Start follows auth transitions and reads the current session once. The
// listener goes in before the read, so a transition that lands while the
// read is in flight wins over the read's result. A failure to read the
// session is treated as signed out.
func (t *SessionTracker) Start(ctx context.Context) (func(), error) {
	t.mu.Lock()
	if t.unsub != nil {
		t.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	t.unsub = func() {}
	t.mu.Unlock()

	unsub := t.auth.OnSessionChange(func(event backend.AuthEvent, s *backend.Session) {
		t.apply(context.Background(), s, event)
	})
	t.mu.Lock()
	t.unsub = unsub
	t.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, t.timeout)
	session, err := t.auth.GetSession(fetchCtx)
	cancel()
	if err != nil {
		t.log.WithError(err).Warn("Could not read current session, starting signed out")
		session = nil
	}
	t.apply(ctx, session, "")

	var once sync.Once
	return func() { once.Do(unsub) }, nil
}

// Observe registers fn for every state change.
func (t *SessionTracker) Observe(fn func(SessionState)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextObs
	t.nextObs++
	t.obs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.obs, id)
		t.mu.Unlock()
	}
}

// Current returns the latest state.
func (t *SessionTracker) Current() SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// EnterGuestMode lets the user browse without an account. It is local
// only and lasts until the process exits.
func (t *SessionTracker) EnterGuestMode() {
	t.applyMu.Lock()
	defer t.applyMu.Unlock()

	t.mu.Lock()
	t.state.Guest = true
	state := t.state
	t.mu.Unlock()

	t.log.Info("Guest mode enabled")
	t.notify(state)
}

func (t *SessionTracker) apply(ctx context.Context, s *backend.Session, event backend.AuthEvent) {
	t.applyMu.Lock()
	defer t.applyMu.Unlock()

	// An empty event is the initial read; it is stale once any real
	// transition has been applied.
	if event == "" {
		if t.transitions > 0 {
			return
		}
	} else {
		t.transitions++
	}

	t.mu.Lock()
	prev := t.state
	t.mu.Unlock()

	next := SessionState{Guest: prev.Guest}
	if s != nil && s.User.ID != "" {
		next.UserID = s.User.ID
		next.Email = s.User.Email
		if prev.UserID == s.User.ID && prev.Role != "" {
			next.Role = prev.Role
		} else {
			next.Role = t.resolveRole(ctx, s)
		}
	}

	t.mu.Lock()
	t.state = next
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{
		"event":   event,
		"user_id": next.UserID,
		"role":    next.Role,
	}).Debug("Session updated")
	t.notify(next)
}

// resolveRole reads the profile's user_type, falling back to the session
// metadata and then to student. Failures are not surfaced.
func (t *SessionTracker) resolveRole(ctx context.Context, s *backend.Session) models.UserRole {
	profile, err := lookupProfile(ctx, t.store, s.User.ID, t.timeout)
	switch {
	case err != nil:
		t.log.WithError(err).Debug("Role lookup failed, using session metadata")
	case profile != nil:
		if role, ok := models.ParseRole(string(profile.UserType)); ok {
			return role
		}
	}
	if role, ok := models.ParseRole(s.User.Metadata["user_type"]); ok {
		return role
	}
	return models.RoleStudent
}

func (t *SessionTracker) notify(state SessionState) {
	t.mu.Lock()
	observers := make([]func(SessionState), 0, len(t.obs))
	for _, fn := range t.obs {
		observers = append(observers, fn)
	}
	t.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

func lookupProfile(ctx context.Context, store backend.Querier, userID string, timeout time.Duration) (*models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var profiles []models.Profile
	q := backend.Query{
		Table:   ProfilesTable,
		Filters: []backend.Filter{backend.Eq("id", userID)},
		Limit:   1,
	}
	if err := store.Query(ctx, q, &profiles); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}
