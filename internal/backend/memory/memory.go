// Package memory is an in-process implementation of backend.Backend. The
// shuttlectl demo mode runs on it, and so do the tracker tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"campus_shuttle/internal/backend"
)

type account struct {
	id       string
	email    string
	hash     []byte
	metadata map[string]string
}

type subscription struct {
	table    string
	filter   *backend.Filter
	listener func(backend.Change)
}

// Backend keeps rows as decoded JSON objects so that queries see exactly
// what a remote backend would serialize.
type Backend struct {
	mu sync.Mutex

	tables    map[string][]map[string]any
	accounts  map[string]*account // by lower-cased email
	session   *backend.Session
	lastStamp time.Time

	nextListener     int
	sessionListeners map[int]backend.SessionListener
	subscriptions    map[int]*subscription

	queryErr    error
	queryHook   func(backend.Query)
	queryCounts map[string]int
}

func New() *Backend {
	return &Backend{
		tables:           make(map[string][]map[string]any),
		accounts:         make(map[string]*account),
		sessionListeners: make(map[int]backend.SessionListener),
		subscriptions:    make(map[int]*subscription),
		queryCounts:      make(map[string]int),
	}
}

// Seed stores rows without emitting change notifications.
func (b *Backend) Seed(table string, records ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range records {
		row, err := toRow(rec)
		if err != nil {
			return err
		}
		b.stampLocked(row)
		b.tables[table] = append(b.tables[table], row)
	}
	return nil
}

// FailQueries makes every subsequent Query return err; nil restores normal operation.
func (b *Backend) FailQueries(err error) {
	b.mu.Lock()
	b.queryErr = err
	b.mu.Unlock()
}

// SetQueryHook installs fn to run at the start of every Query, before any
// row is read. Tests use it to stall or reorder fetches.
func (b *Backend) SetQueryHook(fn func(backend.Query)) {
	b.mu.Lock()
	b.queryHook = fn
	b.mu.Unlock()
}

// QueryCount reports how many queries hit table.
func (b *Backend) QueryCount(table string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queryCounts[table]
}

func (b *Backend) Query(ctx context.Context, q backend.Query, dest any) error {
	b.mu.Lock()
	hook := b.queryHook
	b.queryCounts[q.Table]++
	b.mu.Unlock()

	if hook != nil {
		hook(q)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.queryErr != nil {
		err := b.queryErr
		b.mu.Unlock()
		return err
	}
	var rows []map[string]any
	for _, row := range b.tables[q.Table] {
		if q.Matches(row) {
			rows = append(rows, copyRow(row))
		}
	}
	b.mu.Unlock()

	if q.Order != nil {
		col, desc := q.Order.Column, q.Order.Descending
		sort.SliceStable(rows, func(i, j int) bool {
			c := compareValues(rows[i][col], rows[j][col])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return decode(rows, dest)
}

func (b *Backend) Insert(ctx context.Context, table string, record any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, err := toRow(record)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if id, _ := row["id"].(string); id != "" && b.indexLocked(table, id) >= 0 {
		b.mu.Unlock()
		return fmt.Errorf("%s %s: %w", table, id, backend.ErrConflict)
	}
	b.stampLocked(row)
	b.tables[table] = append(b.tables[table], row)
	out := copyRow(row)
	b.mu.Unlock()

	b.emit(backend.Change{Table: table, Type: backend.ChangeInsert, Record: copyRow(out)})
	return decode(out, dest)
}

func (b *Backend) Upsert(ctx context.Context, table string, record any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, err := toRow(record)
	if err != nil {
		return err
	}
	id, _ := row["id"].(string)

	b.mu.Lock()
	idx := -1
	if id != "" {
		idx = b.indexLocked(table, id)
	}
	if idx < 0 {
		b.mu.Unlock()
		return b.Insert(ctx, table, record, dest)
	}
	old := copyRow(b.tables[table][idx])
	for k, v := range row {
		b.tables[table][idx][k] = v
	}
	out := copyRow(b.tables[table][idx])
	b.mu.Unlock()

	b.emit(backend.Change{Table: table, Type: backend.ChangeUpdate, Record: copyRow(out), Old: old})
	return decode(out, dest)
}

func (b *Backend) Update(ctx context.Context, table string, filters []backend.Filter, patch map[string]any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := toRow(patch)
	if err != nil {
		return err
	}

	q := backend.Query{Table: table, Filters: filters}
	var changes []backend.Change
	updated := []map[string]any{}

	b.mu.Lock()
	for _, row := range b.tables[table] {
		if !q.Matches(row) {
			continue
		}
		old := copyRow(row)
		for k, v := range normalized {
			row[k] = v
		}
		if _, ok := row["updated_at"]; ok {
			row["updated_at"] = b.nextStampLocked().Format(time.RFC3339Nano)
		}
		updated = append(updated, copyRow(row))
		changes = append(changes, backend.Change{Table: table, Type: backend.ChangeUpdate, Record: copyRow(row), Old: old})
	}
	b.mu.Unlock()

	for _, c := range changes {
		b.emit(c)
	}
	if dest == nil {
		return nil
	}
	return decode(updated, dest)
}

// Delete removes matching rows and notifies subscribers.
func (b *Backend) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q := backend.Query{Table: table, Filters: filters}
	var changes []backend.Change

	b.mu.Lock()
	kept := b.tables[table][:0]
	for _, row := range b.tables[table] {
		if q.Matches(row) {
			changes = append(changes, backend.Change{Table: table, Type: backend.ChangeDelete, Old: copyRow(row)})
			continue
		}
		kept = append(kept, row)
	}
	b.tables[table] = kept
	b.mu.Unlock()

	for _, c := range changes {
		b.emit(c)
	}
	return nil
}

func (b *Backend) SubscribeChanges(ctx context.Context, table string, filter *backend.Filter, listener func(backend.Change)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var f *backend.Filter
	if filter != nil {
		copied := *filter
		f = &copied
	}

	b.mu.Lock()
	id := b.nextListener
	b.nextListener++
	b.subscriptions[id] = &subscription{table: table, filter: f, listener: listener}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscriptions, id)
			b.mu.Unlock()
		})
	}, nil
}

// SubscriberCount reports the number of open change subscriptions.
func (b *Backend) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

// emit runs matching listeners synchronously, outside the lock.
func (b *Backend) emit(c backend.Change) {
	b.mu.Lock()
	var listeners []func(backend.Change)
	for _, sub := range b.subscriptions {
		if sub.table == c.Table && c.Matches(sub.filter) {
			listeners = append(listeners, sub.listener)
		}
	}
	b.mu.Unlock()

	for _, l := range listeners {
		l(c)
	}
}

// --- auth ---

func (b *Backend) GetSession(ctx context.Context) (*backend.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, nil
	}
	s := *b.session
	return &s, nil
}

func (b *Backend) OnSessionChange(listener backend.SessionListener) func() {
	b.mu.Lock()
	id := b.nextListener
	b.nextListener++
	b.sessionListeners[id] = listener
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.sessionListeners, id)
		b.mu.Unlock()
	}
}

func (b *Backend) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*backend.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	b.mu.Lock()
	if _, exists := b.accounts[key]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("email already in use: %w", backend.ErrConflict)
	}
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	acct := &account{id: uuid.NewString(), email: key, hash: hash, metadata: md}
	b.accounts[key] = acct
	b.mu.Unlock()

	return b.startSession(acct, backend.EventSignedIn), nil
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	acct, ok := b.accounts[strings.ToLower(strings.TrimSpace(email))]
	b.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(password)) != nil {
		return nil, backend.ErrInvalidCredentials
	}
	return b.startSession(acct, backend.EventSignedIn), nil
}

func (b *Backend) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.session = nil
	b.mu.Unlock()
	b.notifySession(backend.EventSignedOut, nil)
	return nil
}

// RefreshSession rotates the access token of the current session.
func (b *Backend) RefreshSession(ctx context.Context) (*backend.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	if b.session == nil {
		b.mu.Unlock()
		return nil, backend.ErrUnauthorized
	}
	b.session.AccessToken = uuid.NewString()
	b.session.ExpiresAt = time.Now().Add(time.Hour)
	s := *b.session
	b.mu.Unlock()

	b.notifySession(backend.EventTokenRefreshed, &s)
	return &s, nil
}

func (b *Backend) startSession(acct *account, event backend.AuthEvent) *backend.Session {
	md := make(map[string]string, len(acct.metadata))
	for k, v := range acct.metadata {
		md[k] = v
	}
	s := backend.Session{
		AccessToken: uuid.NewString(),
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        backend.User{ID: acct.id, Email: acct.email, Metadata: md},
	}
	b.mu.Lock()
	b.session = &s
	b.mu.Unlock()

	b.notifySession(event, &s)
	out := s
	return &out
}

func (b *Backend) notifySession(event backend.AuthEvent, s *backend.Session) {
	b.mu.Lock()
	listeners := make([]backend.SessionListener, 0, len(b.sessionListeners))
	for _, l := range b.sessionListeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		if s == nil {
			l(event, nil)
			continue
		}
		copied := *s
		l(event, &copied)
	}
}

// --- helpers ---

func (b *Backend) indexLocked(table, id string) int {
	for i, row := range b.tables[table] {
		if row["id"] == id {
			return i
		}
	}
	return -1
}

// stampLocked fills id and created_at the way a database default would.
func (b *Backend) stampLocked(row map[string]any) {
	if id, _ := row["id"].(string); id == "" {
		row["id"] = uuid.NewString()
	}
	if isZeroTime(row["created_at"]) {
		row["created_at"] = b.nextStampLocked().Format(time.RFC3339Nano)
	}
}

// nextStampLocked returns strictly increasing timestamps so that
// created_at ordering is total.
func (b *Backend) nextStampLocked() time.Time {
	now := time.Now().UTC()
	if !now.After(b.lastStamp) {
		now = b.lastStamp.Add(time.Microsecond)
	}
	b.lastStamp = now
	return now
}

func isZeroTime(v any) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return err == nil && t.IsZero()
}

func toRow(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("record must encode to a JSON object: %w", err)
	}
	return row, nil
}

func copyRow(row map[string]any) map[string]any {
	if row == nil {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func decode(v any, dest any) error {
	if dest == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// compareValues orders JSON scalars: nil first, then numbers, booleans,
// timestamps and plain strings by their natural order.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case string:
		if bv, ok := b.(string); ok {
			ta, errA := time.Parse(time.RFC3339Nano, av)
			tb, errB := time.Parse(time.RFC3339Nano, bv)
			if errA == nil && errB == nil {
				return ta.Compare(tb)
			}
			return strings.Compare(av, bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

var _ backend.Backend = (*Backend)(nil)
