package tracker

import (
	"context"
	"errors"
	"testing"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/backend/memory"
	"campus_shuttle/internal/models"
)

func signedUp(t *testing.T, b *memory.Backend, email string, metadata map[string]string) string {
	t.Helper()
	s, err := b.SignUp(context.Background(), email, "secret1", metadata)
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	return s.User.ID
}

func startSession(t *testing.T, b *memory.Backend) (*SessionTracker, *recorder[SessionState]) {
	t.Helper()
	st := NewSessionTracker(b, b, 0, quiet)
	rec := &recorder[SessionState]{}
	st.Observe(rec.add)
	stop, err := st.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(stop)
	return st, rec
}

func TestSessionStartsSignedOut(t *testing.T) {
	b := memory.New()
	st, rec := startSession(t, b)
	if rec.len() != 1 {
		t.Fatalf("expected the initial state to be observed, got %d calls", rec.len())
	}
	if cur := st.Current(); cur.SignedIn() || cur.Authenticated() {
		t.Fatalf("expected signed out, got %+v", cur)
	}
}

func TestSessionRoleComesFromProfile(t *testing.T) {
	b := memory.New()
	id := signedUp(t, b, "d@fleet.com", map[string]string{"user_type": "student"})
	if err := b.Seed(ProfilesTable, models.Profile{ID: id, UserType: models.RoleDriver}); err != nil {
		t.Fatal(err)
	}
	st, _ := startSession(t, b)
	if cur := st.Current(); cur.UserID != id || cur.Role != models.RoleDriver {
		t.Fatalf("expected driver role from profile, got %+v", cur)
	}
}

func TestSessionRoleFallbacks(t *testing.T) {
	t.Run("metadata", func(t *testing.T) {
		b := memory.New()
		signedUp(t, b, "d@fleet.com", map[string]string{"user_type": "driver"})
		st, _ := startSession(t, b)
		if got := st.Current().Role; got != models.RoleDriver {
			t.Fatalf("role = %s, want driver", got)
		}
	})
	t.Run("lookup failure", func(t *testing.T) {
		b := memory.New()
		signedUp(t, b, "d@fleet.com", map[string]string{"user_type": "driver"})
		b.FailQueries(errors.New("offline"))
		st, _ := startSession(t, b)
		if got := st.Current().Role; got != models.RoleDriver {
			t.Fatalf("role = %s, want driver", got)
		}
	})
	t.Run("default", func(t *testing.T) {
		b := memory.New()
		signedUp(t, b, "a@school.edu", nil)
		st, _ := startSession(t, b)
		if got := st.Current().Role; got != models.RoleStudent {
			t.Fatalf("role = %s, want student", got)
		}
	})
}

func TestSessionFollowsAuthTransitions(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	id := signedUp(t, b, "a@school.edu", map[string]string{"user_type": "student"})
	if err := b.SignOut(ctx); err != nil {
		t.Fatal(err)
	}

	st, rec := startSession(t, b)
	if _, err := b.SignInWithPassword(ctx, "a@school.edu", "secret1"); err != nil {
		t.Fatal(err)
	}
	if cur := st.Current(); cur.UserID != id || cur.Email != "a@school.edu" {
		t.Fatalf("expected signed-in state, got %+v", cur)
	}

	lookups := b.QueryCount(ProfilesTable)
	if _, err := b.RefreshSession(ctx); err != nil {
		t.Fatal(err)
	}
	if b.QueryCount(ProfilesTable) != lookups {
		t.Error("a token refresh for the same user must not look the role up again")
	}
	if st.Current().Role != models.RoleStudent {
		t.Error("role lost across token refresh")
	}

	if err := b.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if st.Current().SignedIn() {
		t.Fatal("expected signed out after SignOut")
	}
	if n := rec.len(); n != 4 {
		t.Fatalf("expected 4 observed states (initial, sign-in, refresh, sign-out), got %d", n)
	}
}

func TestGuestModeSurvivesSignOut(t *testing.T) {
	b := memory.New()
	st, rec := startSession(t, b)
	st.EnterGuestMode()
	if cur := st.Current(); !cur.Authenticated() || cur.SignedIn() {
		t.Fatalf("guest should be authenticated without a user, got %+v", cur)
	}
	if !rec.last().Guest {
		t.Error("observers were not told about guest mode")
	}

	signedUp(t, b, "a@school.edu", nil)
	if err := b.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !st.Current().Guest {
		t.Error("guest flag must persist across auth transitions")
	}
}

func TestSessionStartTwice(t *testing.T) {
	st, _ := startSession(t, memory.New())
	if _, err := st.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

// slowSessionAuth signs the user in while GetSession is in flight and then
// returns the signed-out result it read before that.
type slowSessionAuth struct {
	*memory.Backend
	email string
}

func (a slowSessionAuth) GetSession(ctx context.Context) (*backend.Session, error) {
	s, err := a.Backend.GetSession(ctx)
	if _, err := a.Backend.SignInWithPassword(ctx, a.email, "secret1"); err != nil {
		return nil, err
	}
	return s, err
}

func TestSessionSignInDuringStart(t *testing.T) {
	b := memory.New()
	id := signedUp(t, b, "a@school.edu", nil)
	if err := b.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := NewSessionTracker(slowSessionAuth{Backend: b, email: "a@school.edu"}, b, 0, quiet)
	rec := &recorder[SessionState]{}
	st.Observe(rec.add)
	stop, err := st.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(stop)

	if cur := st.Current(); cur.UserID != id {
		t.Fatalf("sign-in during start was lost: %+v", cur)
	}
	if last := rec.last(); last.UserID != id {
		t.Fatalf("observers last saw %+v", last)
	}
}
