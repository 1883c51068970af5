// Package remote implements backend.Backend against a campus shuttle
// server: auth and rows over HTTP, row changes over the realtime websocket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 8 << 20

type Options struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// HTTPClient is used for REST and auth calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Dialer opens realtime connections. Defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Log    *logrus.Entry
}

// Client is a backend.Backend talking to a remote server. The session is
// held locally; sign-out only forgets it.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
	log     *logrus.Entry

	mu           sync.Mutex
	session      *backend.Session
	listeners    map[int]backend.SessionListener
	nextListener int
}

var _ backend.Backend = (*Client)(nil)

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("remote: BaseURL is required")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: invalid BaseURL %q: %w", opts.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: BaseURL must be http or https, got %q", u.Scheme)
	}

	c := &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		http:      opts.HTTPClient,
		dialer:    opts.Dialer,
		log:       opts.Log,
		listeners: make(map[int]backend.SessionListener),
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	if c.log == nil {
		c.log = logrus.WithField("component", "remote")
	}
	return c, nil
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: %d: %s", e.Status, e.Message)
}

// Unwrap maps the status to the backend sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return backend.ErrUnauthorized
	case http.StatusNotFound:
		return backend.ErrNotFound
	case http.StatusConflict:
		return backend.ErrConflict
	}
	return nil
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// do sends a JSON request and decodes a 2xx answer into out (may be nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, header http.Header, body, out any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("remote: building request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.accessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("remote: reading %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("remote: decoding %s %s: %w", method, path, err)
	}
	return nil
}
