package api

import (
	"github.com/gin-gonic/gin"

	"github.com/agenciateixeira/t3-sub001/internal/handlers"
)

func registerPushRoutes(api *gin.RouterGroup, handler *handlers.PushHandler) {
	group := api.Group("/push")
	{
		group.GET("/vapid_public_key", handler.PublicKey)
		group.GET("/subscriptions", handler.List)
		group.POST("/subscriptions", handler.Subscribe)
		group.DELETE("/subscriptions", handler.Unsubscribe)
		group.POST("/test", handler.Test)
	}
}
