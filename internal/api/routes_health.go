package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agenciateixeira/t3-sub001/internal/app"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, handler gin.HandlerFunc) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		r.GET("/api/health", disabledHealthHandler)
		return
	}

	r.GET("/health", handler)
	r.GET("/api/health", handler)
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
