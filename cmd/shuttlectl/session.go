package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"campus_shuttle/internal/backend"
)

// sessionFile persists the signed-in session between invocations. An
// empty path keeps nothing.
type sessionFile struct {
	path string
	now  func() time.Time
}

// Load returns the saved session, or nil when there is none or it expired.
func (f *sessionFile) Load() (*backend.Session, error) {
	if f.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s backend.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	if s.AccessToken == "" || (!s.ExpiresAt.IsZero() && !s.ExpiresAt.After(f.clock())) {
		return nil, nil
	}
	return &s, nil
}

func (f *sessionFile) Save(s *backend.Session) error {
	if f.path == "" || s == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *sessionFile) Clear() error {
	if f.path == "" {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *sessionFile) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}
