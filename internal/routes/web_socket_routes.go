package routes

import (
	"github.com/gin-gonic/gin"
)

func WebSocketRoutes(r *gin.Engine, h Handlers) {
	r.GET("/realtime", h.Tokens.OptionalAuth(), h.Realtime.Connect)
}
