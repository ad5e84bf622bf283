package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/smartpost/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.POST("/read-all", handler.MarkAllRead)
		group.POST("/clear", handler.Clear)
		group.POST("/:id/read", handler.MarkRead)
	}
}
