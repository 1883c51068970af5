package realtime

import "campus_shuttle/internal/backend"

// Message types exchanged on the realtime websocket.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeSubscribed  = "subscribed"
	TypeChange      = "change"
	TypeError       = "error"
)

// Message is the single envelope for both directions. Clients send
// subscribe/unsubscribe with an id of their choosing; the server answers
// subscribed or error with the same id and then pushes change messages
// tagged with it.
type Message struct {
	Type   string          `json:"type"`
	ID     int             `json:"id,omitempty"`
	Table  string          `json:"table,omitempty"`
	Filter *backend.Filter `json:"filter,omitempty"`
	Change *backend.Change `json:"change,omitempty"`
	Status int             `json:"status,omitempty"`
	Error  string          `json:"error,omitempty"`
}
