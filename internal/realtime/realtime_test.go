package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/backend/memory"
	"campus_shuttle/internal/logger"
)

var upgrader = websocket.Upgrader{}

func ridesOwnerOnly(userID, table string, filter *backend.Filter) error {
	if table == "rides" && (filter == nil || filter.Column != "student_id" || filter.ValueString() != userID) {
		return &AccessError{Status: http.StatusForbidden, Message: "rides are visible to their owner only"}
	}
	return nil
}

func startServer(t *testing.T, hub *Hub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		NewClient(hub, conn, r.URL.Query().Get("user"), ridesOwnerOnly, logger.Discard()).Serve()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, id int, table string, filter *backend.Filter) Message {
	t.Helper()
	if err := conn.WriteJSON(Message{Type: TypeSubscribe, ID: id, Table: table, Filter: filter}); err != nil {
		t.Fatalf("write: %v", err)
	}
	return read(t, conn)
}

func TestHubDeliversMatchingChanges(t *testing.T) {
	hub := NewHub(logger.Discard())
	defer hub.Close()
	conn := dial(t, startServer(t, hub)+"?user=u1")

	own := backend.Eq("student_id", "u1")
	if ack := subscribe(t, conn, 7, "rides", &own); ack.Type != TypeSubscribed || ack.ID != 7 {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if ack := subscribe(t, conn, 8, "shuttles", nil); ack.Type != TypeSubscribed {
		t.Fatalf("unexpected ack %+v", ack)
	}

	hub.Publish(backend.Change{Table: "rides", Type: backend.ChangeInsert, Record: map[string]any{"student_id": "u2"}})
	hub.Publish(backend.Change{Table: "rides", Type: backend.ChangeInsert, Record: map[string]any{"student_id": "u1", "vehicle_code": "1001"}})
	hub.Publish(backend.Change{Table: "shuttles", Type: backend.ChangeDelete, Old: map[string]any{"id": "s1"}})

	first := read(t, conn)
	if first.Type != TypeChange || first.ID != 7 || first.Change.Record["vehicle_code"] != "1001" {
		t.Fatalf("expected the u1 ride change first, got %+v", first)
	}
	second := read(t, conn)
	if second.ID != 8 || second.Change.Type != backend.ChangeDelete {
		t.Fatalf("expected the shuttle delete, got %+v", second)
	}
}

func TestHubRefusesForbiddenSubscription(t *testing.T) {
	hub := NewHub(logger.Discard())
	defer hub.Close()
	conn := dial(t, startServer(t, hub)+"?user=u1")

	other := backend.Eq("student_id", "u2")
	msg := subscribe(t, conn, 1, "rides", &other)
	if msg.Type != TypeError || msg.Status != http.StatusForbidden || msg.ID != 1 {
		t.Fatalf("expected a 403 error, got %+v", msg)
	}
	if msg := subscribe(t, conn, 2, "", nil); msg.Type != TypeError || msg.Status != http.StatusBadRequest {
		t.Fatalf("expected a 400 error, got %+v", msg)
	}
}

func TestHubUnsubscribeAndDisconnect(t *testing.T) {
	hub := NewHub(logger.Discard())
	defer hub.Close()
	conn := dial(t, startServer(t, hub))

	subscribe(t, conn, 1, "shuttles", nil)
	subscribe(t, conn, 2, "profiles", nil)
	if err := conn.WriteJSON(Message{Type: TypeUnsubscribe, ID: 1}); err != nil {
		t.Fatal(err)
	}
	// Round trip so the unsubscribe is processed before publishing.
	subscribe(t, conn, 3, "shuttles_probe", nil)

	hub.Publish(backend.Change{Table: "shuttles", Type: backend.ChangeUpdate, Record: map[string]any{"id": "s1"}})
	hub.Publish(backend.Change{Table: "profiles", Type: backend.ChangeUpdate, Record: map[string]any{"id": "p1"}})
	if msg := read(t, conn); msg.ID != 2 {
		t.Fatalf("unsubscribed table still delivered: %+v", msg)
	}

	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", hub.ClientCount())
	}
	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Fatal("client not unregistered after disconnect")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	hub := &Hub{
		log:       logger.Discard(),
		clients:   make(map[*Client]bool),
		broadcast: make(chan backend.Change, 1),
		done:      make(chan struct{}),
	}
	hub.Publish(backend.Change{Table: "a"})
	hub.Publish(backend.Change{Table: "b"})
	if got := <-hub.broadcast; got.Table != "a" {
		t.Fatalf("expected the first change to be kept, got %+v", got)
	}
	select {
	case c := <-hub.broadcast:
		t.Fatalf("overflowing change should be dropped, got %+v", c)
	default:
	}

	hub.Close()
	hub.Close()
	hub.Publish(backend.Change{Table: "c"})
	if len(hub.broadcast) != 0 {
		t.Error("publish after close must be ignored")
	}
}

func TestParseChange(t *testing.T) {
	c, err := ParseChange([]byte(`{"table":"rides","type":"UPDATE","record":{"id":"r1","status":"completed"},"old":{"id":"r1","status":"active"}}`))
	if err != nil {
		t.Fatalf("ParseChange: %v", err)
	}
	if c.Table != "rides" || c.Type != backend.ChangeUpdate || c.Old["status"] != "active" {
		t.Fatalf("unexpected change %+v", c)
	}

	for _, bad := range []string{`{`, `{"type":"INSERT"}`, `{"table":"rides","type":"TRUNCATE"}`} {
		if _, err := ParseChange([]byte(bad)); err == nil {
			t.Errorf("ParseChange(%s) should fail", bad)
		}
	}
}

func TestForwardFromMemoryStore(t *testing.T) {
	hub := NewHub(logger.Discard())
	defer hub.Close()
	conn := dial(t, startServer(t, hub))
	subscribe(t, conn, 1, "shuttles", nil)

	store := memory.New()
	stop, err := Forward(context.Background(), store, []string{"shuttles", "rides"}, hub)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if err := store.Insert(context.Background(), "shuttles", map[string]any{"vehicle_number": "1001"}, nil); err != nil {
		t.Fatal(err)
	}
	if msg := read(t, conn); msg.Change == nil || msg.Change.Record["vehicle_number"] != "1001" {
		t.Fatalf("forwarded change not delivered: %+v", msg)
	}

	stop()
	if store.SubscriberCount() != 0 {
		t.Error("stop left subscriptions open")
	}
}
