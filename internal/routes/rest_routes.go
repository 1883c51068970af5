package routes

import (
	"github.com/gin-gonic/gin"
)

// RestRoutes mounts row access. Anonymous reads are allowed; the row
// policies decide what they can see.
func RestRoutes(r *gin.Engine, h Handlers) {
	rest := r.Group("/rest")
	rest.Use(h.Tokens.OptionalAuth())
	{
		rest.GET("/:table", h.Rest.ListRows)
		rest.POST("/:table", h.Rest.CreateRow)
		rest.PATCH("/:table", h.Rest.UpdateRows)
	}
}
