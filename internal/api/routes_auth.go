package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/smartpost/internal/handlers"
)

func registerAuthRoutes(engine *gin.Engine, handler *handlers.AuthHandler, limiter gin.HandlerFunc) {
	auth := engine.Group("/api/auth")
	auth.Use(limiter)
	{
		auth.POST("/signup", handler.Signup)
		auth.POST("/login", handler.Login)
	}
}
