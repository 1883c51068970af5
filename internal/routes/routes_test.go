package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/backend/memory"
	"campus_shuttle/internal/controllers"
	"campus_shuttle/internal/geo"
	"campus_shuttle/internal/logger"
	"campus_shuttle/internal/middleware"
	"campus_shuttle/internal/models"
	"campus_shuttle/internal/realtime"
	"campus_shuttle/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	rows   *memory.Backend
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tokens, err := middleware.NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	log := logger.Discard()
	rows := memory.New()
	hub := realtime.NewHub(log)
	t.Cleanup(hub.Close)

	h := Handlers{
		Auth:     controllers.NewAuthController(store.NewMemoryAccounts(), tokens, log),
		Rest:     controllers.NewRestController(rows, log),
		Shuttles: controllers.NewShuttleController(rows, geo.CampusRegion, log),
		Realtime: controllers.NewRealtimeController(hub, nil, log),
		Tokens:   tokens,
	}
	return &testServer{router: SetupRouter(h, nil), rows: rows}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) signup(t *testing.T, email, role string) backend.Session {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"email":    email,
		"password": "secret1",
		"data":     map[string]string{"user_type": role, "full_name": "Test"},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup %s: %d %s", email, w.Code, w.Body)
	}
	var session backend.Session
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatal(err)
	}
	return session
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body, err)
	}
	return v
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	session := s.signup(t, "a@school.edu", "student")
	if session.AccessToken == "" || session.User.Metadata["user_type"] != "student" {
		t.Fatalf("unexpected session %+v", session)
	}

	if w := s.do(t, http.MethodPost, "/auth/signup", "", map[string]any{"email": "A@school.edu", "password": "secret1"}, nil); w.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/auth/signup", "", map[string]any{"email": "b@school.edu", "password": "123"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("short password: %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "a@school.edu", "password": "wrong1"}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", w.Code)
	}

	w := s.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "a@school.edu", "password": "secret1"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body)
	}
	login := decodeBody[backend.Session](t, w)
	if login.User.ID != session.User.ID {
		t.Fatalf("login returned another user: %+v", login.User)
	}

	if w := s.do(t, http.MethodPost, "/auth/refresh", login.AccessToken, nil, nil); w.Code != http.StatusOK {
		t.Fatalf("refresh: %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/auth/refresh", "", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh without token: %d", w.Code)
	}
	w = s.do(t, http.MethodGet, "/auth/user", login.AccessToken, nil, nil)
	if user := decodeBody[backend.User](t, w); w.Code != http.StatusOK || user.Email != "a@school.edu" {
		t.Fatalf("current user: %d %+v", w.Code, user)
	}
}

func TestRidesAreOwnerScoped(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice@school.edu", "student")
	bob := s.signup(t, "bob@school.edu", "student")

	w := s.do(t, http.MethodPost, "/rest/rides", alice.AccessToken, map[string]any{
		"student_id": alice.User.ID, "vehicle_code": "1001", "status": "completed",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("insert ride: %d %s", w.Code, w.Body)
	}
	ride := decodeBody[models.Ride](t, w)
	if ride.Status != models.RideActive || ride.ID == "" {
		t.Fatalf("ride insert should be forced active: %+v", ride)
	}

	if w := s.do(t, http.MethodPost, "/rest/rides", bob.AccessToken, map[string]any{"student_id": alice.User.ID, "vehicle_code": "1001"}, nil); w.Code != http.StatusForbidden {
		t.Fatalf("insert for someone else: %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/rest/rides", bob.AccessToken, map[string]any{"vehicle_code": "12"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("short vehicle code: %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/rest/rides", "", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous ride read: %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/rest/rides?student_id=eq."+alice.User.ID, bob.AccessToken, nil, nil)
	if rides := decodeBody[[]models.Ride](t, w); w.Code != http.StatusOK || len(rides) != 0 {
		t.Fatalf("bob must not see alice's rides: %d %+v", w.Code, rides)
	}
	w = s.do(t, http.MethodGet, "/rest/rides?status=eq.active&order=created_at.desc&limit=1", alice.AccessToken, nil, nil)
	if rides := decodeBody[[]models.Ride](t, w); len(rides) != 1 || rides[0].ID != ride.ID {
		t.Fatalf("alice should see her ride: %+v", rides)
	}

	w = s.do(t, http.MethodPatch, "/rest/rides?id=eq."+ride.ID, bob.AccessToken, map[string]any{"status": "completed"}, nil)
	if updated := decodeBody[[]models.Ride](t, w); w.Code != http.StatusOK || len(updated) != 0 {
		t.Fatalf("bob must not complete alice's ride: %d %+v", w.Code, updated)
	}
	w = s.do(t, http.MethodPatch, "/rest/rides?id=eq."+ride.ID, alice.AccessToken, map[string]any{"status": "completed"}, nil)
	if updated := decodeBody[[]models.Ride](t, w); len(updated) != 1 || updated[0].Status != models.RideCompleted {
		t.Fatalf("complete ride: %d %+v", w.Code, updated)
	}
	if w := s.do(t, http.MethodPatch, "/rest/rides", alice.AccessToken, map[string]any{"status": "completed"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unfiltered update: %d", w.Code)
	}
}

func TestUpsertCannotTakeOverAnotherRide(t *testing.T) {
	s := newTestServer(t)
	victim := s.signup(t, "victim@school.edu", "student")
	attacker := s.signup(t, "attacker@school.edu", "student")
	prefer := map[string]string{"Prefer": "resolution=merge-duplicates"}

	w := s.do(t, http.MethodPost, "/rest/rides", victim.AccessToken, map[string]any{"vehicle_code": "1001"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("victim ride: %d %s", w.Code, w.Body)
	}
	ride := decodeBody[models.Ride](t, w)

	w = s.do(t, http.MethodPost, "/rest/rides", attacker.AccessToken, map[string]any{"id": ride.ID, "vehicle_code": "9999"}, prefer)
	if w.Code != http.StatusForbidden {
		t.Fatalf("upsert over another student's ride: %d %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodGet, "/rest/rides", victim.AccessToken, nil, nil)
	rides := decodeBody[[]models.Ride](t, w)
	if len(rides) != 1 || rides[0].ID != ride.ID || rides[0].VehicleCode != "1001" || rides[0].StudentID != victim.User.ID {
		t.Fatalf("victim's ride changed: %+v", rides)
	}

	// Upserting one's own ride still works.
	w = s.do(t, http.MethodPost, "/rest/rides", victim.AccessToken, map[string]any{"id": ride.ID, "vehicle_code": "1002"}, prefer)
	if w.Code != http.StatusCreated {
		t.Fatalf("own upsert: %d %s", w.Code, w.Body)
	}
}

func TestProfileUpsert(t *testing.T) {
	s := newTestServer(t)
	a := s.signup(t, "a@school.edu", "student")
	prefer := map[string]string{"Prefer": "resolution=merge-duplicates"}

	profile := map[string]any{"id": a.User.ID, "user_type": "student", "full_name": "A", "phone": "1"}
	for _, name := range []string{"A", "B"} {
		profile["full_name"] = name
		if w := s.do(t, http.MethodPost, "/rest/profiles", a.AccessToken, profile, prefer); w.Code != http.StatusCreated {
			t.Fatalf("upsert: %d %s", w.Code, w.Body)
		}
	}
	w := s.do(t, http.MethodGet, "/rest/profiles?id=eq."+a.User.ID, a.AccessToken, nil, nil)
	profiles := decodeBody[[]models.Profile](t, w)
	if len(profiles) != 1 || profiles[0].FullName != "B" {
		t.Fatalf("expected one merged profile, got %+v", profiles)
	}
	if w := s.do(t, http.MethodGet, "/rest/accounts", a.AccessToken, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown table: %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/rest/profiles?password=eq.x", a.AccessToken, nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown column: %d", w.Code)
	}
}

func TestDriverShuttleLifecycle(t *testing.T) {
	s := newTestServer(t)
	driver := s.signup(t, "ravi@fleet.com", "driver")
	student := s.signup(t, "a@school.edu", "student")
	prefer := map[string]string{"Prefer": "resolution=merge-duplicates"}
	for _, acct := range []backend.Session{driver, student} {
		profile := map[string]any{"id": acct.User.ID, "user_type": acct.User.Metadata["user_type"]}
		if w := s.do(t, http.MethodPost, "/rest/profiles", acct.AccessToken, profile, prefer); w.Code != http.StatusCreated {
			t.Fatalf("profile: %d %s", w.Code, w.Body)
		}
	}

	register := map[string]any{"vehicle_number": "MH-1001", "route_type": "mens_hostel"}
	if w := s.do(t, http.MethodPost, "/shuttles", student.AccessToken, register, nil); w.Code != http.StatusForbidden {
		t.Fatalf("student registering a shuttle: %d", w.Code)
	}
	w := s.do(t, http.MethodPost, "/shuttles", driver.AccessToken, register, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body)
	}
	shuttle := decodeBody[models.Shuttle](t, w)
	if shuttle.VehicleNumber != "1001" || shuttle.TotalSeats != models.DefaultTotalSeats || shuttle.IsActive {
		t.Fatalf("unexpected shuttle %+v", shuttle)
	}
	if w := s.do(t, http.MethodPost, "/shuttles", driver.AccessToken, register, nil); w.Code != http.StatusConflict {
		t.Fatalf("second registration: %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/rest/shuttles", driver.AccessToken, map[string]any{"vehicle_number": "2002"}, nil); w.Code != http.StatusForbidden {
		t.Fatalf("rest shuttle insert: %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/rest/shuttles?is_active=eq.true", "", nil, nil)
	if list := decodeBody[[]models.Shuttle](t, w); len(list) != 0 {
		t.Fatalf("off-duty shuttle listed: %+v", list)
	}

	patch := map[string]any{"is_active": true, "latitude": 19.08, "longitude": 72.88, "current_seats": 3}
	w = s.do(t, http.MethodPatch, "/rest/shuttles?id=eq."+shuttle.ID, student.AccessToken, patch, nil)
	if updated := decodeBody[[]models.Shuttle](t, w); len(updated) != 0 {
		t.Fatalf("student must not move a shuttle: %+v", updated)
	}
	w = s.do(t, http.MethodPatch, "/rest/shuttles?driver_id=eq."+driver.User.ID, driver.AccessToken, patch, nil)
	if updated := decodeBody[[]models.Shuttle](t, w); len(updated) != 1 || !updated[0].IsActive || updated[0].CurrentSeats != 3 {
		t.Fatalf("driver update: %d %+v", w.Code, updated)
	}

	w = s.do(t, http.MethodGet, "/rest/shuttles?is_active=eq.true", "", nil, nil)
	if list := decodeBody[[]models.Shuttle](t, w); len(list) != 1 || list[0].Latitude != 19.08 {
		t.Fatalf("active shuttle missing: %+v", list)
	}

	w = s.do(t, http.MethodGet, "/shuttles/geojson", "", nil, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/geo+json" {
		t.Fatalf("geojson: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"vehicle_number":"1001"`)) {
		t.Fatalf("marker missing from %s", w.Body)
	}
}
