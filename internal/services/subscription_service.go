package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agenciateixeira/t3-sub001/internal/models"
	apperrors "github.com/agenciateixeira/t3-sub001/pkg/errors"
	"github.com/agenciateixeira/t3-sub001/pkg/validator"
)

const (
	p256dhKeyLength = 65 // uncompressed P-256 point
	authSecretLen   = 16
)

// RegisterSubscriptionInput carries a browser PushSubscription for one user.
type RegisterSubscriptionInput struct {
	UserID    string
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
}

// SubscriptionDTO is the API view of a push subscription. Key material is never echoed back.
type SubscriptionDTO struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Endpoint   string     `json:"endpoint"`
	UserAgent  string     `json:"user_agent,omitempty"`
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SubscriptionService stores Web Push endpoints per user.
type SubscriptionService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(db *gorm.DB) (*SubscriptionService, error) {
	if db == nil {
		return nil, errors.New("subscription service: db is required")
	}
	return &SubscriptionService{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Register validates the subscription and upserts it on (user_id, endpoint), reactivating it.
func (s *SubscriptionService) Register(ctx context.Context, input RegisterSubscriptionInput) (*models.PushSubscription, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("subscription service: user id is required")
	}
	endpoint := strings.TrimSpace(input.Endpoint)
	if !validator.IsPushEndpoint(endpoint) {
		return nil, apperrors.NewInvalidSubscription("endpoint must be an absolute https URL")
	}
	p256dh := strings.TrimSpace(input.P256dh)
	if err := checkKey(p256dh, p256dhKeyLength); err != nil {
		return nil, apperrors.NewInvalidSubscription("p256dh " + err.Error())
	}
	auth := strings.TrimSpace(input.Auth)
	if err := checkKey(auth, authSecretLen); err != nil {
		return nil, apperrors.NewInvalidSubscription("auth " + err.Error())
	}

	now := s.now()
	record := models.PushSubscription{
		UserID:     userID,
		Endpoint:   endpoint,
		P256dh:     p256dh,
		Auth:       auth,
		UserAgent:  truncate(strings.TrimSpace(input.UserAgent), 512),
		Active:     true,
		LastUsedAt: &now,
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_agent", "active", "last_used_at", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("subscription service: register: %w", err)
	}

	var stored models.PushSubscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("subscription service: reload subscription: %w", err)
	}
	return &stored, nil
}

// ListActive returns the subscriptions eligible for delivery.
func (s *SubscriptionService) ListActive(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	ctx = ensureContext(ctx)
	var rows []models.PushSubscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("subscription service: list active: %w", err)
	}
	return rows, nil
}

// ListForUser returns every subscription a user has, active or not.
func (s *SubscriptionService) ListForUser(ctx context.Context, userID string) ([]SubscriptionDTO, error) {
	ctx = ensureContext(ctx)
	var rows []models.PushSubscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("subscription service: list subscriptions: %w", err)
	}

	items := make([]SubscriptionDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, NewSubscriptionDTO(row))
	}
	return items, nil
}

// Deactivate marks a subscription as unusable while keeping the row.
func (s *SubscriptionService) Deactivate(ctx context.Context, userID, endpoint string) error {
	ctx = ensureContext(ctx)
	if err := s.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Update("active", false).Error; err != nil {
		return fmt.Errorf("subscription service: deactivate: %w", err)
	}
	return nil
}

// Touch records a successful delivery.
func (s *SubscriptionService) Touch(ctx context.Context, userID, endpoint string) error {
	ctx = ensureContext(ctx)
	if err := s.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Update("last_used_at", s.now()).Error; err != nil {
		return fmt.Errorf("subscription service: touch: %w", err)
	}
	return nil
}

// Unregister deletes the subscription. Missing rows yield ErrNotFound.
func (s *SubscriptionService) Unregister(ctx context.Context, userID, endpoint string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, strings.TrimSpace(endpoint)).
		Delete(&models.PushSubscription{})
	if result.Error != nil {
		return fmt.Errorf("subscription service: unregister: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ExpireStale deactivates active subscriptions not used since before.
func (s *SubscriptionService) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Model(&models.PushSubscription{}).
		Where("active = ? AND (last_used_at IS NULL OR last_used_at < ?)", true, before.UTC()).
		Update("active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("subscription service: expire stale: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func checkKey(value string, size int) error {
	if value == "" {
		return errors.New("is required")
	}
	decoded, err := decodeBase64URL(value)
	if err != nil {
		return errors.New("must be base64url encoded")
	}
	if len(decoded) != size {
		return fmt.Errorf("must decode to %d bytes", size)
	}
	return nil
}

// Browsers emit unpadded base64url; some clients pad or use the standard alphabet.
func decodeBase64URL(value string) ([]byte, error) {
	trimmed := strings.TrimRight(value, "=")
	if decoded, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(trimmed)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

// NewSubscriptionDTO maps a stored subscription to its API view.
func NewSubscriptionDTO(row models.PushSubscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:         row.ID,
		UserID:     row.UserID,
		Endpoint:   row.Endpoint,
		UserAgent:  row.UserAgent,
		Active:     row.Active,
		LastUsedAt: row.LastUsedAt,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}
