package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/smartpost/internal/handlers"
)

func registerProfileRoutes(api *gin.RouterGroup, handler *handlers.ProfileHandler) {
	api.POST("/profile", handler.Create)

	group := api.Group("/profile/:username")
	{
		group.GET("", handler.Get)
		group.PUT("", handler.Update)
		group.DELETE("", handler.Delete)
	}
}
