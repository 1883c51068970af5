package routes

import (
	"github.com/gin-gonic/gin"
)

func AuthRoutes(r *gin.Engine, h Handlers) {
	auth := r.Group("/auth")
	{
		auth.POST("/signup", h.Auth.SignupUser)
		auth.POST("/login", h.Auth.LoginUser)
		auth.POST("/refresh", h.Tokens.RequireAuth(), h.Auth.RefreshToken)
		auth.GET("/user", h.Tokens.RequireAuth(), h.Auth.CurrentUser)
	}
}
