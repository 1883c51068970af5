package remote

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"campus_shuttle/internal/backend"
)

func (c *Client) GetSession(ctx context.Context) (*backend.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, nil
	}
	s := *c.session
	return &s, nil
}

func (c *Client) OnSessionChange(listener backend.SessionListener) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = listener
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*backend.Session, error) {
	body := map[string]any{
		"email":    strings.TrimSpace(email),
		"password": password,
		"data":     metadata,
	}
	var s backend.Session
	if err := c.do(ctx, http.MethodPost, "/auth/signup", nil, nil, body, &s); err != nil {
		return nil, err
	}
	c.setSession(&s, backend.EventSignedIn)
	return &s, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	body := map[string]string{"email": strings.TrimSpace(email), "password": password}
	var s backend.Session
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, nil, body, &s); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest) {
			return nil, backend.ErrInvalidCredentials
		}
		return nil, err
	}
	c.setSession(&s, backend.EventSignedIn)
	return &s, nil
}

// SignOut forgets the local session. Tokens are stateless on the server.
func (c *Client) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.setSession(nil, backend.EventSignedOut)
	return nil
}

// RefreshSession trades the current token for a fresh one.
func (c *Client) RefreshSession(ctx context.Context) (*backend.Session, error) {
	if c.accessToken() == "" {
		return nil, backend.ErrUnauthorized
	}
	var s backend.Session
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, nil, nil, &s); err != nil {
		return nil, err
	}
	c.setSession(&s, backend.EventTokenRefreshed)
	return &s, nil
}

// RestoreSession installs a session saved by an earlier process without
// notifying listeners, as if it had been there from the start.
func (c *Client) RestoreSession(s *backend.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == nil {
		c.session = nil
		return
	}
	copied := *s
	c.session = &copied
}

func (c *Client) setSession(s *backend.Session, event backend.AuthEvent) {
	c.mu.Lock()
	if s == nil {
		c.session = nil
	} else {
		copied := *s
		c.session = &copied
	}
	listeners := make([]backend.SessionListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	c.log.WithField("event", event).Debug("Session changed")
	for _, l := range listeners {
		if s == nil {
			l(event, nil)
			continue
		}
		copied := *s
		l(event, &copied)
	}
}
