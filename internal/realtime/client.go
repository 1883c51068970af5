package realtime

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// maxMessageSize bounds subscribe requests; they are tiny.
	maxMessageSize = 4096
)

// AuthorizeFunc decides whether userID (empty for anonymous) may follow
// table with the given filter. Returning an *AccessError reports the
// status sent back to the client.
type AuthorizeFunc func(userID, table string, filter *backend.Filter) error

// AccessError is a subscription refusal with an HTTP-like status.
type AccessError struct {
	Status  int
	Message string
}

func (e *AccessError) Error() string {
	return e.Message
}

type subscription struct {
	table  string
	filter *backend.Filter
}

// Client is one websocket connection and its subscriptions.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	userID    string
	authorize AuthorizeFunc
	log       *logrus.Entry

	send chan Message
	mu   sync.Mutex
	subs map[int]subscription
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, authorize AuthorizeFunc, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.WithField("component", "realtime_client")
	}
	return &Client{
		hub:       hub,
		conn:      conn,
		userID:    userID,
		authorize: authorize,
		log:       log.WithField("user_id", userID),
		send:      make(chan Message, sendBuffer),
		subs:      make(map[int]subscription),
	}
}

// Serve registers the client and blocks until the connection closes.
func (c *Client) Serve() {
	c.hub.Register(c)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump()

	c.hub.Unregister(c)
	close(c.send)
	<-writerDone
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("Realtime connection closed unexpectedly")
			} else {
				c.log.Debug("Realtime connection closed")
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	switch msg.Type {
	case TypeSubscribe:
		if msg.Table == "" {
			c.reply(Message{Type: TypeError, ID: msg.ID, Status: http.StatusBadRequest, Error: "table is required"})
			return
		}
		if err := c.authorize(c.userID, msg.Table, msg.Filter); err != nil {
			status := http.StatusForbidden
			var access *AccessError
			if errors.As(err, &access) {
				status = access.Status
			}
			c.log.WithError(err).WithField("table", msg.Table).Warn("Subscription refused")
			c.reply(Message{Type: TypeError, ID: msg.ID, Status: status, Error: err.Error()})
			return
		}
		c.mu.Lock()
		c.subs[msg.ID] = subscription{table: msg.Table, filter: msg.Filter}
		c.mu.Unlock()
		c.log.WithFields(logrus.Fields{"table": msg.Table, "id": msg.ID}).Debug("Subscribed")
		c.reply(Message{Type: TypeSubscribed, ID: msg.ID, Table: msg.Table})
	case TypeUnsubscribe:
		c.mu.Lock()
		delete(c.subs, msg.ID)
		c.mu.Unlock()
	default:
		c.reply(Message{Type: TypeError, ID: msg.ID, Status: http.StatusBadRequest, Error: "unknown message type " + msg.Type})
	}
}

// deliver runs on the hub goroutine with the hub lock held.
func (c *Client) deliver(change backend.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, sub := range c.subs {
		if sub.table != change.Table || !change.Matches(sub.filter) {
			continue
		}
		ch := change
		c.reply(Message{Type: TypeChange, ID: id, Change: &ch})
	}
}

func (c *Client) reply(msg Message) {
	select {
	case c.send <- msg:
	default:
		c.log.WithField("type", msg.Type).Warn("Client send queue full, dropping message")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.WithError(err).Warn("Failed to write realtime message")
				c.conn.Close()
				c.drain()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.conn.Close()
				c.drain()
				return
			}
		}
	}
}

// drain discards queued messages until Serve closes the channel.
func (c *Client) drain() {
	for range c.send {
	}
}
