package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agenciateixeira/t3-sub001/internal/services"
	"github.com/agenciateixeira/t3-sub001/pkg/errors"
	"github.com/agenciateixeira/t3-sub001/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for the caller's notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("NOTIFICATIONS_UNAVAILABLE", "notification service is required", http.StatusInternalServerError)
	}
	return &NotificationHandler{service: service}, nil
}

// List returns a page of notifications for the current user.
// GET /api/notifications?limit=&offset=&unread=&type=
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	page, err := h.service.ListForUser(ctx, services.ListNotificationsInput{
		UserID:        userID,
		Limit:         parseIntQuery(c, "limit", 0),
		Offset:        parseIntQuery(c, "offset", 0),
		UnreadOnly:    parseBoolQuery(c, "unread"),
		Type:          strings.TrimSpace(c.Query("type")),
		ReferenceID:   strings.TrimSpace(c.Query("reference_id")),
		ReferenceType: strings.TrimSpace(c.Query("reference_type")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	unread, err := h.service.CountUnread(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, page.Items, &response.Meta{
		Limit:  page.Limit,
		Offset: page.Offset,
		Total:  page.Total,
		Unread: unread,
	})
}

// UnreadCount returns the number of unread notifications.
// GET /api/notifications/unread_count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := h.service.CountUnread(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread": count})
}

// MarkRead toggles a notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.updateReadState(c, true)
}

// MarkUnread toggles a notification to unread.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.updateReadState(c, false)
}

func (h *NotificationHandler) updateReadState(c *gin.Context, read bool) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	var (
		dto *services.NotificationDTO
		err error
	)
	if read {
		dto, err = h.service.MarkRead(requestContext(c), userID, id)
	} else {
		dto, err = h.service.MarkUnread(requestContext(c), userID, id)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Delete(requestContext(c), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// MarkAllRead marks all notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}
