package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agenciateixeira/t3-sub001/internal/middleware"
	"github.com/agenciateixeira/t3-sub001/pkg/errors"
	"github.com/agenciateixeira/t3-sub001/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUser returns the authenticated user id, writing a 401 when it is missing.
func currentUser(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
