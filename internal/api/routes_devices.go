package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/smartpost/internal/handlers"
)

func registerDeviceRoutes(api *gin.RouterGroup, handler *handlers.DeviceHandler) {
	group := api.Group("/devices/:id")
	{
		group.GET("/state", handler.State)
		group.POST("/command", handler.Command)
	}
}
