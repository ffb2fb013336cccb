package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/agenciateixeira/t3-sub001/internal/models"
	"github.com/agenciateixeira/t3-sub001/pkg/logger"
)

const (
	defaultSessionSpec      = "@every 5m"
	defaultSubscriptionSpec = "@daily"
	defaultNotificationSpec = "@daily"
	defaultSessionIdleTTL   = 3 * time.Hour
)

// SessionReaper closes reminder sessions that stopped sending heartbeats.
type SessionReaper interface {
	ReapIdle(now time.Time, ttl time.Duration) int
}

// SubscriptionExpirer deactivates push subscriptions that have not been used for a while.
type SubscriptionExpirer interface {
	ExpireStale(ctx context.Context, before time.Time) (int64, error)
}

// Cleaner coordinates background maintenance: reaping idle reminder sessions, expiring
// unused push subscriptions and pruning old read notifications.
type Cleaner struct {
	db            *gorm.DB
	sessions      SessionReaper
	subscriptions SubscriptionExpirer
	cron          *cron.Cron
	now           func() time.Time
	log           *zap.Logger
	enabled       bool

	sessionIdleTTL        time.Duration
	subscriptionMaxAge    time.Duration
	notificationRetention time.Duration

	sessionSchedule      string
	subscriptionSchedule string
	notificationSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSessionIdleTTL sets how long a session may go without a heartbeat.
func WithSessionIdleTTL(ttl time.Duration) Option {
	return func(cleaner *Cleaner) {
		if ttl > 0 {
			cleaner.sessionIdleTTL = ttl
		}
	}
}

// WithSubscriptionMaxAge sets how long an unused subscription stays active. Zero disables expiry.
func WithSubscriptionMaxAge(age time.Duration) Option {
	return func(cleaner *Cleaner) {
		cleaner.subscriptionMaxAge = age
	}
}

// WithNotificationRetention sets how long read notifications are kept. Zero disables pruning.
func WithNotificationRetention(retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		cleaner.notificationRetention = retention
	}
}

// WithSessionSchedule overrides the cron schedule for idle session reaping.
func WithSessionSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.sessionSchedule = schedule
		}
	}
}

// WithSubscriptionSchedule overrides the cron schedule for subscription expiry.
func WithSubscriptionSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.subscriptionSchedule = schedule
		}
	}
}

// WithNotificationSchedule overrides the cron schedule for notification pruning.
func WithNotificationSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.notificationSchedule = schedule
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, sessions SessionReaper, subscriptions SubscriptionExpirer, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:                   db,
		sessions:             sessions,
		subscriptions:        subscriptions,
		now:                  time.Now,
		sessionIdleTTL:       defaultSessionIdleTTL,
		sessionSchedule:      defaultSessionSpec,
		subscriptionSchedule: defaultSubscriptionSpec,
		notificationSchedule: defaultNotificationSpec,
		log:                  logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.sessions != nil || cleaner.subscriptionsEnabled() || cleaner.notificationsEnabled()

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			c.reapSessions()
		}); err != nil {
			return fmt.Errorf("maintenance: schedule session reaping: %w", err)
		}
	}

	if c.subscriptionsEnabled() {
		if _, err := c.cron.AddFunc(c.subscriptionSchedule, func() {
			if _, err := c.expireSubscriptions(context.Background()); err != nil {
				c.log.Warn("subscription expiry failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule subscription expiry: %w", err)
		}
	}

	if c.notificationsEnabled() {
		if _, err := c.cron.AddFunc(c.notificationSchedule, func() {
			if _, err := CleanupNotifications(context.Background(), c.db, c.now().Add(-c.notificationRetention)); err != nil {
				c.log.Warn("notification cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule notification cleanup: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		c.reapSessions()
	}

	if c.subscriptionsEnabled() {
		if _, err := c.expireSubscriptions(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.notificationsEnabled() {
		if _, err := CleanupNotifications(ctx, c.db, c.now().Add(-c.notificationRetention)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) reapSessions() int {
	closed := c.sessions.ReapIdle(c.now(), c.sessionIdleTTL)
	if closed > 0 {
		c.log.Info("idle reminder sessions closed", zap.Int("count", closed))
	}
	return closed
}

func (c *Cleaner) expireSubscriptions(ctx context.Context) (int64, error) {
	expired, err := c.subscriptions.ExpireStale(ctx, c.now().Add(-c.subscriptionMaxAge))
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		c.log.Info("stale push subscriptions deactivated", zap.Int64("count", expired))
	}
	return expired, nil
}

func (c *Cleaner) subscriptionsEnabled() bool {
	return c.subscriptions != nil && c.subscriptionMaxAge > 0
}

func (c *Cleaner) notificationsEnabled() bool {
	return c.db != nil && c.notificationRetention > 0
}

// CleanupNotifications deletes read notifications created before the cutoff. Unread ones are kept.
func CleanupNotifications(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup notifications: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, before.UTC()).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}
