// Package store holds the server's row and account storage: gorm over
// Postgres in production and an in-process variant for running the
// server without a database.
package store

import (
	"encoding/json"
	"time"
)

// stampColumns are filled with the write time by the store.
var stampColumns = map[string][]string{
	"rides":    {"created_at"},
	"shuttles": {"updated_at"},
	"profiles": {"updated_at"},
}

func toRow(record any) (map[string]any, error) {
	if m, ok := record.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	b, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var row map[string]any
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, err
	}
	return row, nil
}

func decode(v any, dest any) error {
	if dest == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}

// isUnset reports whether v is absent, empty or a zero timestamp.
func isUnset(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		if t == "" {
			return true
		}
		ts, err := time.Parse(time.RFC3339Nano, t)
		return err == nil && ts.IsZero()
	case time.Time:
		return t.IsZero()
	}
	return false
}
