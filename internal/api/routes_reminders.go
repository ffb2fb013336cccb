package api

import (
	"github.com/gin-gonic/gin"

	"github.com/agenciateixeira/t3-sub001/internal/handlers"
)

func registerReminderRoutes(api *gin.RouterGroup, handler *handlers.ReminderHandler) {
	group := api.Group("/reminders")
	{
		group.POST("/scan", handler.Scan)
		group.GET("/sessions", handler.List)
		group.POST("/sessions", handler.Open)
		group.POST("/sessions/:id/heartbeat", handler.Heartbeat)
		group.POST("/sessions/:id/scan", handler.Trigger)
		group.DELETE("/sessions/:id", handler.Close)
	}
}
