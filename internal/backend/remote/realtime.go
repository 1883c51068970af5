package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/realtime"
)

// ackTimeout bounds the wait for the server to accept a subscription.
const ackTimeout = 10 * time.Second

// subscriptionID is the only id used; each subscription has its own connection.
const subscriptionID = 1

// SubscribeChanges opens a realtime connection following table. It returns
// once the server has accepted the subscription.
func (c *Client) SubscribeChanges(ctx context.Context, table string, filter *backend.Filter, listener func(backend.Change)) (func(), error) {
	header := http.Header{}
	if token := c.accessToken(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.realtimeURL(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "realtime connection refused"}
		}
		return nil, fmt.Errorf("remote: realtime dial: %w", err)
	}

	if err := subscribe(ctx, conn, table, filter); err != nil {
		conn.Close()
		return nil, err
	}

	log := c.log.WithField("table", table)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg realtime.Message
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
					log.WithError(err).Debug("Realtime connection ended")
				}
				return
			}
			switch msg.Type {
			case realtime.TypeChange:
				if msg.ID == subscriptionID && msg.Change != nil {
					listener(*msg.Change)
				}
			case realtime.TypeError:
				log.WithField("status", msg.Status).Warn("Realtime error: " + msg.Error)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			conn.Close()
			<-done
		})
	}, nil
}

// subscribe sends the request and waits for its acknowledgement.
func subscribe(ctx context.Context, conn *websocket.Conn, table string, filter *backend.Filter) error {
	deadline := time.Now().Add(ackTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	req := realtime.Message{Type: realtime.TypeSubscribe, ID: subscriptionID, Table: table, Filter: filter}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("remote: sending subscribe: %w", err)
	}

	_ = conn.SetReadDeadline(deadline)
	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("remote: waiting for subscription ack: %w", err)
		}
		if msg.ID != subscriptionID {
			continue
		}
		switch msg.Type {
		case realtime.TypeSubscribed:
			_ = conn.SetReadDeadline(time.Time{})
			_ = conn.SetWriteDeadline(time.Time{})
			return nil
		case realtime.TypeError:
			return &APIError{Status: msg.Status, Message: msg.Error}
		}
	}
}

func (c *Client) realtimeURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/realtime"
}
