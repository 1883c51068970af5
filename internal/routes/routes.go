package routes

import (
	"io"

	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"

	"campus_shuttle/internal/controllers"
	"campus_shuttle/internal/middleware"
)

// Handlers bundles the controllers the router mounts.
type Handlers struct {
	Auth     *controllers.AuthController
	Rest     *controllers.RestController
	Shuttles *controllers.ShuttleController
	Realtime *controllers.RealtimeController
	Tokens   *middleware.Tokens
}

// SetupRouter builds the engine. Request logs go to logWriter, usually the
// same rotating file as the application log.
func SetupRouter(h Handlers, logWriter io.Writer) *gin.Engine {
	r := gin.New()
	if logWriter != nil {
		r.Use(ginlog.SetLogger(ginlog.WithWriter(logWriter), ginlog.WithUTC(true)))
	}
	r.Use(gin.Recovery())

	AuthRoutes(r, h)
	RestRoutes(r, h)
	ShuttleRoutes(r, h)
	WebSocketRoutes(r, h)

	return r
}
