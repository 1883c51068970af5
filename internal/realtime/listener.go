package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
)

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	// pingInterval checks an idle listener connection.
	pingInterval = 90 * time.Second
)

// ListenPostgres relays NOTIFY payloads on channel to the hub until ctx is
// done. Payloads are the JSON objects built by the row change trigger.
func ListenPostgres(ctx context.Context, dsn, channel string, hub *Hub, log *logrus.Entry) error {
	if log == nil {
		log = logrus.WithField("component", "pg_listener")
	}
	listener := pq.NewListener(dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Info("Listening for row changes")
		case pq.ListenerEventDisconnected:
			log.WithError(err).Warn("Change listener disconnected")
		case pq.ListenerEventReconnected:
			// Changes made while disconnected are lost; clients catch up on their next fetch.
			log.Info("Change listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			log.WithError(err).Error("Change listener connection attempt failed")
		}
	})
	defer listener.Close()

	if err := listener.Listen(channel); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// A nil notification follows a reconnect.
			if n == nil {
				continue
			}
			change, err := ParseChange([]byte(n.Extra))
			if err != nil {
				log.WithError(err).Warn("Ignoring malformed change payload")
				continue
			}
			hub.Publish(change)
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				log.WithError(err).Warn("Change listener ping failed")
			}
		}
	}
}

// ParseChange decodes a trigger payload.
func ParseChange(payload []byte) (backend.Change, error) {
	var c backend.Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return backend.Change{}, err
	}
	if c.Table == "" {
		return backend.Change{}, fmt.Errorf("change payload has no table")
	}
	switch c.Type {
	case backend.ChangeInsert, backend.ChangeUpdate, backend.ChangeDelete:
	default:
		return backend.Change{}, fmt.Errorf("unknown change type %q", c.Type)
	}
	return c, nil
}

// Forward relays changes from an in-process store to the hub, for servers
// running without Postgres. The returned func stops forwarding.
func Forward(ctx context.Context, src backend.Subscriber, tables []string, hub *Hub) (func(), error) {
	var unsubs []func()
	stop := func() {
		for _, u := range unsubs {
			u()
		}
	}
	for _, table := range tables {
		unsub, err := src.SubscribeChanges(ctx, table, nil, hub.Publish)
		if err != nil {
			stop()
			return nil, fmt.Errorf("forwarding %s: %w", table, err)
		}
		unsubs = append(unsubs, unsub)
	}
	return stop, nil
}
