package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agenciateixeira/t3-sub001/internal/models"
	"github.com/agenciateixeira/t3-sub001/internal/push"
	"github.com/agenciateixeira/t3-sub001/internal/services"
	"github.com/agenciateixeira/t3-sub001/pkg/errors"
	"github.com/agenciateixeira/t3-sub001/pkg/response"
)

type subscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required,max=2048,push_endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required,max=256"`
		Auth   string `json:"auth" validate:"required,max=64"`
	} `json:"keys"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,max=2048"`
}

type testPushRequest struct {
	Title   string `json:"title" validate:"max=120"`
	Message string `json:"message" validate:"max=500"`
}

// PushHandler manages browser subscriptions and test deliveries.
type PushHandler struct {
	subscriptions *services.SubscriptionService
	dispatcher    *push.Dispatcher
	publicKey     string
}

// NewPushHandler constructs a push handler. An empty public key means push is not configured.
func NewPushHandler(subscriptions *services.SubscriptionService, dispatcher *push.Dispatcher, publicKey string) (*PushHandler, error) {
	if subscriptions == nil {
		return nil, errors.New("PUSH_UNAVAILABLE", "subscription service is required", http.StatusInternalServerError)
	}
	return &PushHandler{
		subscriptions: subscriptions,
		dispatcher:    dispatcher,
		publicKey:     strings.TrimSpace(publicKey),
	}, nil
}

// PublicKey returns the VAPID application server key browsers subscribe with.
// GET /api/push/vapid_public_key
func (h *PushHandler) PublicKey(c *gin.Context) {
	if h.publicKey == "" {
		response.Error(c, errors.ErrPushUnavailable)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"public_key": h.publicKey})
}

// Subscribe registers or reactivates a browser subscription for the caller.
// POST /api/push/subscriptions
func (h *PushHandler) Subscribe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req subscriptionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	row, err := h.subscriptions.Register(requestContext(c), services.RegisterSubscriptionInput{
		UserID:    userID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, services.NewSubscriptionDTO(*row))
}

// List returns the caller's subscriptions, active or not.
// GET /api/push/subscriptions
func (h *PushHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items, err := h.subscriptions.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// Unsubscribe deletes one of the caller's subscriptions by endpoint.
// DELETE /api/push/subscriptions
func (h *PushHandler) Unsubscribe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req unsubscribeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.subscriptions.Unregister(requestContext(c), userID, req.Endpoint); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Test sends a transient notification to every active subscription of the caller and
// returns the delivery report. Nothing is persisted.
// POST /api/push/test
func (h *PushHandler) Test(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if h.dispatcher == nil || !h.dispatcher.Enabled() {
		response.Error(c, errors.ErrPushUnavailable)
		return
	}

	var req testPushRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Test notification"
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = "Push notifications are working."
	}

	now := time.Now().UTC()
	report := h.dispatcher.Dispatch(requestContext(c), services.NotificationDTO{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      models.NotificationTypeSystem,
		Title:     title,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	})
	response.Success(c, http.StatusOK, report)
}
