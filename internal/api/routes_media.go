package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/smartpost/internal/handlers"
)

func registerMediaRoutes(api *gin.RouterGroup, handler *handlers.MediaHandler) {
	api.POST("/devices/:id/media", handler.Upload)
	api.GET("/devices/:id/media", handler.List)
	api.GET("/media/:id/download", handler.Download)
}
