package routes

import (
	"github.com/gin-gonic/gin"
)

func ShuttleRoutes(r *gin.Engine, h Handlers) {
	shuttles := r.Group("/shuttles")
	{
		shuttles.GET("/geojson", h.Shuttles.Markers)
		shuttles.POST("", h.Tokens.RequireAuth(), h.Shuttles.RegisterShuttle)
	}
}
