package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/agenciateixeira/t3-sub001/internal/models"
	"github.com/agenciateixeira/t3-sub001/internal/realtime"
	apperrors "github.com/agenciateixeira/t3-sub001/pkg/errors"
	"github.com/agenciateixeira/t3-sub001/pkg/metrics"
)

const (
	defaultNotificationLimit = 25
	maxNotificationLimit     = 100
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID            string               `json:"id"`
	UserID        string               `json:"user_id"`
	Type          string               `json:"type"`
	Title         string               `json:"title"`
	Message       string               `json:"message"`
	ReferenceID   string               `json:"reference_id,omitempty"`
	ReferenceType string               `json:"reference_type,omitempty"`
	ActionURL     string               `json:"action_url,omitempty"`
	Metadata      map[string]any       `json:"metadata,omitempty"`
	IsRead        bool                 `json:"is_read"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	ReadAt        *time.Time           `json:"read_at,omitempty"`
	Raw           *models.Notification `json:"-"`
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID        string
	Type          string
	Title         string
	Message       string
	ReferenceID   string
	ReferenceType string
	ActionURL     string
	Metadata      map[string]any
	IsRead        bool
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID        string
	Limit         int
	Offset        int
	UnreadOnly    bool
	Type          string
	ReferenceID   string
	ReferenceType string
	CreatedAfter  *time.Time
}

// NotificationPage is one page of a user's notifications.
type NotificationPage struct {
	Items  []NotificationDTO
	Total  int64
	Limit  int
	Offset int
}

// RecentQuery identifies notifications about one referenced entity created after a point in time.
type RecentQuery struct {
	UserID       string
	ReferenceID  string
	Type         string
	CreatedAfter time.Time
}

// NotificationEventPayload represents data sent to realtime consumers.
type NotificationEventPayload struct {
	Notification   *NotificationDTO `json:"notification,omitempty"`
	NotificationID string           `json:"notification_id,omitempty"`
	Count          int64            `json:"count,omitempty"`
}

// CreatedListener is notified after a notification row has been committed.
type CreatedListener interface {
	NotificationCreated(ctx context.Context, notification NotificationDTO)
}

// CreatedListenerFunc adapts a function to CreatedListener.
type CreatedListenerFunc func(ctx context.Context, notification NotificationDTO)

// NotificationCreated implements CreatedListener.
func (f CreatedListenerFunc) NotificationCreated(ctx context.Context, notification NotificationDTO) {
	f(ctx, notification)
}

// NotificationService manages user in-app notifications.
type NotificationService struct {
	db          *gorm.DB
	broadcaster realtime.Broadcaster

	mu        sync.RWMutex
	listeners []CreatedListener
}

// NewNotificationService constructs a NotificationService. The broadcaster may be nil.
func NewNotificationService(db *gorm.DB, broadcaster realtime.Broadcaster) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, broadcaster: broadcaster}, nil
}

// AddCreatedListener registers a hook invoked after every successful Create.
func (s *NotificationService) AddCreatedListener(listener CreatedListener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// ListForUser returns notifications for the supplied user ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) (*NotificationPage, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	offset := max(0, input.Offset)

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if value := strings.TrimSpace(input.Type); value != "" {
		query = query.Where("type = ?", value)
	}
	if value := strings.TrimSpace(input.ReferenceID); value != "" {
		query = query.Where("reference_id = ?", value)
	}
	if value := strings.TrimSpace(input.ReferenceType); value != "" {
		query = query.Where("reference_type = ?", value)
	}
	if input.CreatedAfter != nil {
		query = query.Where("created_at > ?", input.CreatedAfter.UTC())
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("notification service: count notifications: %w", err)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return &NotificationPage{
		Items:  mapNotificationRows(rows),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// HasRecent reports whether a matching notification exists after the cutoff.
func (s *NotificationService) HasRecent(ctx context.Context, query RecentQuery) (bool, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(query.UserID)
	referenceID := strings.TrimSpace(query.ReferenceID)
	if userID == "" || referenceID == "" {
		return false, errors.New("notification service: user id and reference id are required")
	}

	stmt := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND reference_id = ?", userID, referenceID).
		Where("created_at > ?", query.CreatedAfter.UTC())
	if value := strings.TrimSpace(query.Type); value != "" {
		stmt = stmt.Where("type = ?", value)
	}

	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return false, fmt.Errorf("notification service: check recent: %w", err)
	}
	return count > 0, nil
}

// CountUnread returns the number of unread notifications for the user.
func (s *NotificationService) CountUnread(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// Create registers a new notification, broadcasts the event and notifies listeners.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, errors.New("notification service: type is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errors.New("notification service: title is required")
	}

	notification := models.Notification{
		UserID:        userID,
		Type:          notificationType,
		Title:         title,
		Message:       strings.TrimSpace(input.Message),
		ReferenceID:   strings.TrimSpace(input.ReferenceID),
		ReferenceType: strings.TrimSpace(input.ReferenceType),
		ActionURL:     strings.TrimSpace(input.ActionURL),
		IsRead:        input.IsRead,
	}

	if input.Metadata != nil {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(data)
	}

	if input.IsRead {
		now := time.Now().UTC()
		notification.ReadAt = &now
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(notificationType).Inc()

	dto := mapNotification(notification)
	s.broadcast(userID, "notification.created", &NotificationEventPayload{
		Notification: &dto,
	})

	s.mu.RLock()
	listeners := append([]CreatedListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, listener := range listeners {
		listener.NotificationCreated(ctx, dto)
	}

	return &dto, nil
}

// MarkRead sets the notification read flag for a user.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.load(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	if !notification.IsRead {
		now := time.Now().UTC()
		if err := s.db.WithContext(ctx).Model(notification).
			Updates(map[string]any{
				"is_read": true,
				"read_at": now,
			}).Error; err != nil {
			return nil, fmt.Errorf("notification service: mark read: %w", err)
		}
		notification.IsRead = true
		notification.ReadAt = &now
	}

	dto := mapNotification(*notification)
	s.broadcast(userID, "notification.updated", &NotificationEventPayload{
		Notification:   &dto,
		NotificationID: notification.ID,
	})

	return &dto, nil
}

// MarkUnread unsets the notification read flag.
func (s *NotificationService) MarkUnread(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)
	notification, err := s.load(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(notification).
		Updates(map[string]any{
			"is_read": false,
			"read_at": nil,
		}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark unread: %w", err)
	}

	notification.IsRead = false
	notification.ReadAt = nil
	dto := mapNotification(*notification)

	s.broadcast(userID, "notification.updated", &NotificationEventPayload{
		Notification:   &dto,
		NotificationID: notification.ID,
	})

	return &dto, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.broadcast(userID, "notification.deleted", &NotificationEventPayload{
		NotificationID: notificationID,
	})
	return nil
}

// MarkAllRead marks all notifications for the user as read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}

	s.broadcast(userID, "notification.read_all", &NotificationEventPayload{Count: result.RowsAffected})
	return result.RowsAffected, nil
}

func (s *NotificationService) load(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &notification, nil
}

func (s *NotificationService) broadcast(userID, event string, payload *NotificationEventPayload) {
	if s.broadcaster == nil {
		return
	}
	message := realtime.Message{
		Stream: realtime.StreamNotifications,
		Event:  event,
	}
	if payload != nil {
		message.Data = payload
	}
	s.broadcaster.BroadcastToUser(realtime.StreamNotifications, userID, message)
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:            row.ID,
		UserID:        row.UserID,
		Type:          row.Type,
		Title:         row.Title,
		Message:       row.Message,
		ReferenceID:   row.ReferenceID,
		ReferenceType: row.ReferenceType,
		ActionURL:     row.ActionURL,
		Metadata:      decodeJSON(row.Metadata),
		IsRead:        row.IsRead,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		ReadAt:        row.ReadAt,
		Raw:           &row,
	}
}
