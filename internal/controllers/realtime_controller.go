package controllers

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/middleware"
	"campus_shuttle/internal/realtime"
)

// RealtimeController upgrades /realtime requests and hands them to the hub.
type RealtimeController struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewRealtimeController accepts websocket origins from allowed; an empty
// list accepts any origin.
func NewRealtimeController(hub *realtime.Hub, allowed []string, log *logrus.Entry) *RealtimeController {
	if log == nil {
		log = logrus.WithField("component", "realtime")
	}
	return &RealtimeController{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || slices.Contains(allowed, origin)
			},
		},
		log: log,
	}
}

// Connect serves one realtime websocket until the client leaves.
// Anonymous clients may follow shuttles only.
func (rc *RealtimeController) Connect(c *gin.Context) {
	userID := middleware.UserID(c)
	conn, err := rc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		rc.log.WithError(err).Warn("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	rc.log.WithFields(logrus.Fields{
		"user_id": userID,
		"remote":  c.ClientIP(),
	}).Info("Realtime connection established")
	realtime.NewClient(rc.hub, conn, userID, authorizeSubscription, rc.log).Serve()
}
