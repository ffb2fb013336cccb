package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agenciateixeira/t3-sub001/internal/monitoring"
	"github.com/agenciateixeira/t3-sub001/pkg/response"
)

// Health runs the registered probes. Any component down yields 503; degraded ones keep 200.
func Health(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(requestContext(c))

		code := http.StatusOK
		if !report.Healthy() {
			code = http.StatusServiceUnavailable
		}
		response.Success(c, code, report)
	}
}
