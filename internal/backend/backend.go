// Package backend defines the contract the client core needs from the
// managed backend: password auth with change notifications, equality
// queries, row writes that return the written rows, and per-table change
// subscriptions.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrUnauthorized       = errors.New("not authorized")
	ErrConflict           = errors.New("conflicts with an existing row")
	ErrNotFound           = errors.New("not found")
	ErrUnknownTable       = errors.New("unknown table")
)

// AuthEvent names an authentication transition.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

type User struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"user_metadata"`
}

type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

// SessionListener receives every auth transition. session is nil after sign-out.
type SessionListener func(event AuthEvent, session *Session)

type Auth interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	OnSessionChange(listener SessionListener) (unsubscribe func())
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
}

// Filter is a column equality predicate.
type Filter struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// ValueString is the canonical text form used on the wire and for matching.
func (f Filter) ValueString() string {
	return fmt.Sprint(f.Value)
}

// Matches reports whether row holds the filtered value.
func (f Filter) Matches(row map[string]any) bool {
	v, ok := row[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.ValueString()
}

type Order struct {
	Column     string
	Descending bool
}

type Query struct {
	Table   string
	Filters []Filter
	Order   *Order
	Limit   int // 0 means no limit
}

// Matches reports whether row satisfies every filter of the query.
func (q Query) Matches(row map[string]any) bool {
	for _, f := range q.Filters {
		if !f.Matches(row) {
			return false
		}
	}
	return true
}

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is a row change notification. Record is nil for deletes and Old is
// nil for inserts; listeners should not rely on either being present.
type Change struct {
	Table  string         `json:"table"`
	Type   ChangeType     `json:"type"`
	Record map[string]any `json:"record,omitempty"`
	Old    map[string]any `json:"old,omitempty"`
}

// Matches applies a subscription filter to the new row, or the old row for deletes.
func (c Change) Matches(f *Filter) bool {
	if f == nil {
		return true
	}
	if c.Record != nil && f.Matches(c.Record) {
		return true
	}
	return c.Old != nil && f.Matches(c.Old)
}

type Querier interface {
	// Query decodes matching rows into dest, a pointer to a slice.
	Query(ctx context.Context, q Query, dest any) error
}

type Writer interface {
	// Insert writes record and decodes the created row into dest (may be nil).
	Insert(ctx context.Context, table string, record any, dest any) error
	// Upsert inserts or merges on the primary key.
	Upsert(ctx context.Context, table string, record any, dest any) error
	// Update patches every row matching filters; dest receives the updated rows.
	Update(ctx context.Context, table string, filters []Filter, patch map[string]any, dest any) error
}

// Subscriber delivers row changes. The listener runs on the notifying
// goroutine and must not block.
type Subscriber interface {
	SubscribeChanges(ctx context.Context, table string, filter *Filter, listener func(Change)) (unsubscribe func(), err error)
}

type Store interface {
	Querier
	Writer
	Subscriber
}

// Backend is the whole managed backend.
type Backend interface {
	Auth
	Store
}
