package memory

import (
	"context"
	"errors"
	"testing"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/models"
)

func TestQueryPreservesInsertionOrder(t *testing.T) {
	b := New()
	if err := b.Seed("shuttles",
		models.Shuttle{ID: "b", VehicleNumber: "2002", IsActive: true},
		models.Shuttle{ID: "a", VehicleNumber: "1001", IsActive: true},
		models.Shuttle{ID: "c", VehicleNumber: "3003", IsActive: false},
	); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	var got []models.Shuttle
	q := backend.Query{Table: "shuttles", Filters: []backend.Filter{backend.Eq("is_active", true)}}
	if err := b.Query(context.Background(), q, &got); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("unexpected rows %+v", got)
	}
}

func TestQueryOrderAndLimit(t *testing.T) {
	b := New()
	ctx := context.Background()
	for _, code := range []string{"1001", "1002", "1003"} {
		if err := b.Insert(ctx, "rides", models.Ride{StudentID: "u1", VehicleCode: code, Status: models.RideActive}, nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	var got []models.Ride
	q := backend.Query{
		Table:   "rides",
		Filters: []backend.Filter{backend.Eq("student_id", "u1")},
		Order:   &backend.Order{Column: "created_at", Descending: true},
		Limit:   1,
	}
	if err := b.Query(ctx, q, &got); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].VehicleCode != "1003" {
		t.Fatalf("expected newest ride, got %+v", got)
	}
}

func TestInsertStampsAndNotifies(t *testing.T) {
	b := New()
	ctx := context.Background()

	var changes []backend.Change
	f := backend.Eq("student_id", "u1")
	unsub, err := b.SubscribeChanges(ctx, "rides", &f, func(c backend.Change) { changes = append(changes, c) })
	if err != nil {
		t.Fatalf("SubscribeChanges: %v", err)
	}

	var created models.Ride
	if err := b.Insert(ctx, "rides", models.Ride{StudentID: "u1", VehicleCode: "1001"}, &created); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Errorf("expected id and created_at to be stamped: %+v", created)
	}
	if err := b.Insert(ctx, "rides", models.Ride{StudentID: "u2", VehicleCode: "1002"}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(changes) != 1 || changes[0].Type != backend.ChangeInsert {
		t.Fatalf("expected one filtered insert notification, got %+v", changes)
	}

	unsub()
	unsub()
	if b.SubscriberCount() != 0 {
		t.Error("subscription not removed")
	}
}

func TestInsertDuplicateID(t *testing.T) {
	b := New()
	ctx := context.Background()
	if err := b.Insert(ctx, "profiles", models.Profile{ID: "p1"}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := b.Insert(ctx, "profiles", models.Profile{ID: "p1"}, nil)
	if !errors.Is(err, backend.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpsertMerges(t *testing.T) {
	b := New()
	ctx := context.Background()
	if err := b.Upsert(ctx, "profiles", models.Profile{ID: "p1", UserType: models.RoleStudent, FullName: "A"}, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	var out models.Profile
	if err := b.Upsert(ctx, "profiles", models.Profile{ID: "p1", UserType: models.RoleStudent, FullName: "B"}, &out); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if out.FullName != "B" {
		t.Errorf("expected merged name, got %q", out.FullName)
	}
	var all []models.Profile
	if err := b.Query(ctx, backend.Query{Table: "profiles"}, &all); err != nil || len(all) != 1 {
		t.Fatalf("expected one profile, got %d (%v)", len(all), err)
	}
}

func TestUpdateReturnsRows(t *testing.T) {
	b := New()
	ctx := context.Background()
	driver := "d1"
	if err := b.Seed("shuttles", models.Shuttle{ID: "s1", VehicleNumber: "1001", DriverID: &driver}); err != nil {
		t.Fatal(err)
	}

	var updated []models.Shuttle
	err := b.Update(ctx, "shuttles", []backend.Filter{backend.Eq("driver_id", "d1")}, map[string]any{"is_active": true}, &updated)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated) != 1 || !updated[0].IsActive {
		t.Fatalf("unexpected update result %+v", updated)
	}
}

func TestDeleteNotifiesWithOldRow(t *testing.T) {
	b := New()
	ctx := context.Background()
	if err := b.Seed("shuttles", models.Shuttle{ID: "s1", VehicleNumber: "1001"}); err != nil {
		t.Fatal(err)
	}
	var got backend.Change
	unsub, _ := b.SubscribeChanges(ctx, "shuttles", nil, func(c backend.Change) { got = c })
	defer unsub()

	if err := b.Delete(ctx, "shuttles", []backend.Filter{backend.Eq("id", "s1")}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got.Type != backend.ChangeDelete || got.Old["id"] != "s1" || got.Record != nil {
		t.Fatalf("unexpected change %+v", got)
	}
}

func TestFailQueries(t *testing.T) {
	b := New()
	boom := errors.New("offline")
	b.FailQueries(boom)
	var out []models.Shuttle
	if err := b.Query(context.Background(), backend.Query{Table: "shuttles"}, &out); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if b.QueryCount("shuttles") != 1 {
		t.Errorf("failed queries still count, got %d", b.QueryCount("shuttles"))
	}
}

func TestAuthLifecycle(t *testing.T) {
	b := New()
	ctx := context.Background()

	var events []backend.AuthEvent
	unsub := b.OnSessionChange(func(e backend.AuthEvent, _ *backend.Session) { events = append(events, e) })
	defer unsub()

	s, err := b.SignUp(ctx, "A@School.edu", "abcdef", map[string]string{"user_type": "student"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if s.User.Email != "a@school.edu" || s.User.Metadata["user_type"] != "student" {
		t.Errorf("unexpected session user %+v", s.User)
	}
	if _, err := b.SignUp(ctx, "a@school.edu", "abcdef", nil); !errors.Is(err, backend.ErrConflict) {
		t.Errorf("expected conflict on duplicate email, got %v", err)
	}
	if err := b.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if cur, _ := b.GetSession(ctx); cur != nil {
		t.Error("session should be cleared after sign-out")
	}
	if _, err := b.SignInWithPassword(ctx, "a@school.edu", "wrong"); !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Errorf("expected invalid credentials, got %v", err)
	}
	if _, err := b.SignInWithPassword(ctx, "a@school.edu", "abcdef"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if _, err := b.RefreshSession(ctx); err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}

	want := []backend.AuthEvent{backend.EventSignedIn, backend.EventSignedOut, backend.EventSignedIn, backend.EventTokenRefreshed}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, events[i], want[i])
		}
	}
}
