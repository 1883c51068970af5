package realtime

import (
	"sync"

	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
)

// broadcastBuffer is how many changes may queue before new ones are dropped.
const broadcastBuffer = 100

// Hub fans row changes out to every connected client whose subscriptions
// match them.
type Hub struct {
	log       *logrus.Entry
	clients   map[*Client]bool
	broadcast chan backend.Change
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// NewHub creates a hub and starts its broadcast goroutine.
func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.WithField("component", "realtime_hub")
	}
	h := &Hub{
		log:       log,
		clients:   make(map[*Client]bool),
		broadcast: make(chan backend.Change, broadcastBuffer),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case change := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				c.deliver(change)
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client connection to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.log.WithFields(logrus.Fields{
		"user_id": c.userID,
		"clients": len(h.clients),
	}).Info("Client registered with realtime hub")
}

// Unregister removes the client. Once it returns the hub sends nothing
// more to the client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.log.WithFields(logrus.Fields{
		"user_id": c.userID,
		"clients": len(h.clients),
	}).Info("Client unregistered from realtime hub")
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues a change for broadcasting. It never blocks: when the
// queue is full the change is dropped.
func (h *Hub) Publish(change backend.Change) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- change:
	default:
		h.log.WithFields(logrus.Fields{
			"table": change.Table,
			"type":  change.Type,
		}).Warn("Broadcast channel full, dropping change")
	}
}

// Close stops broadcasting. Connected clients stay open until they leave.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
