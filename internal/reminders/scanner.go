package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenciateixeira/t3-sub001/internal/models"
	"github.com/agenciateixeira/t3-sub001/internal/services"
	"github.com/agenciateixeira/t3-sub001/pkg/logger"
	"github.com/agenciateixeira/t3-sub001/pkg/metrics"
)

const (
	DefaultDedupWindow = 24 * time.Hour
	DefaultConcurrency = 4
)

// TaskSource lists a user's reminder candidates.
type TaskSource interface {
	OpenTasksForAssignee(ctx context.Context, userID string) ([]models.Task, error)
}

// NotificationStore is the subset of the notification service the scanner needs.
type NotificationStore interface {
	HasRecent(ctx context.Context, query services.RecentQuery) (bool, error)
	Create(ctx context.Context, input services.CreateNotificationInput) (*services.NotificationDTO, error)
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the time zone due dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scanner) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithDedupWindow sets how far back an existing reminder suppresses a new one.
func WithDedupWindow(window time.Duration) Option {
	return func(s *Scanner) {
		if window > 0 {
			s.dedupWindow = window
		}
	}
}

// WithConcurrency bounds how many tasks are processed at once.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLocale selects the message language.
func WithLocale(locale string) Option {
	return func(s *Scanner) {
		s.messages = NewMessages(locale)
	}
}

// WithTaskURL sets the action URL template; "{id}" is replaced by the task id.
func WithTaskURL(template string) Option {
	return func(s *Scanner) {
		s.taskURL = strings.TrimSpace(template)
	}
}

// WithLogger overrides the scanner logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Scanner) {
		if log != nil {
			s.log = log
		}
	}
}

// Scanner evaluates a user's open tasks and writes reminder notifications.
type Scanner struct {
	tasks         TaskSource
	notifications NotificationStore

	now         func() time.Time
	loc         *time.Location
	dedupWindow time.Duration
	concurrency int
	messages    *Messages
	taskURL     string
	log         *zap.Logger
}

// NewScanner constructs a Scanner.
func NewScanner(tasks TaskSource, notifications NotificationStore, opts ...Option) (*Scanner, error) {
	if tasks == nil {
		return nil, errors.New("reminder scanner: task source is required")
	}
	if notifications == nil {
		return nil, errors.New("reminder scanner: notification store is required")
	}

	s := &Scanner{
		tasks:         tasks,
		notifications: notifications,
		now:           time.Now,
		loc:           time.UTC,
		dedupWindow:   DefaultDedupWindow,
		concurrency:   DefaultConcurrency,
		messages:      NewMessages("en"),
		taskURL:       "/tasks/{id}",
		log:           logger.WithModule("reminders"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ScanUser runs one reminder cycle for the user. Failures are reported, never returned.
func (s *Scanner) ScanUser(ctx context.Context, userID string) CycleReport {
	now := s.now()
	report := CycleReport{UserID: userID, StartedAt: now, Results: []TaskResult{}}
	defer func() {
		metrics.ScanDuration.Observe(report.Duration().Seconds())
	}()

	tasks, err := s.tasks.OpenTasksForAssignee(ctx, userID)
	if err != nil {
		report.FetchError = err.Error()
		report.FinishedAt = s.now()
		metrics.ScanCycles.WithLabelValues("fetch_error").Inc()
		s.log.Warn("fetch open tasks failed", zap.String("user_id", userID), zap.Error(err))
		return report
	}

	results := make([]TaskResult, len(tasks))
	var group errgroup.Group
	group.SetLimit(s.concurrency)
	for i := range tasks {
		task := tasks[i]
		group.Go(func() error {
			results[i] = s.processTask(ctx, userID, task, now)
			return nil
		})
	}
	_ = group.Wait()

	report.Results = results
	report.tally()
	report.FinishedAt = s.now()

	for _, result := range results {
		metrics.ReminderOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	}
	metrics.ScanCycles.WithLabelValues("ok").Inc()

	s.log.Debug("reminder scan finished",
		zap.String("user_id", userID),
		zap.Int("tasks", len(tasks)),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (s *Scanner) processTask(ctx context.Context, userID string, task models.Task, now time.Time) TaskResult {
	result := TaskResult{TaskID: task.ID}
	fail := func(err error) TaskResult {
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		s.log.Warn("reminder task failed", zap.String("user_id", userID), zap.String("task_id", task.ID), zap.Error(err))
		return result
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	exists, err := s.notifications.HasRecent(ctx, services.RecentQuery{
		UserID:       userID,
		ReferenceID:  task.ID,
		Type:         models.NotificationTypeReminder,
		CreatedAfter: now.Add(-s.dedupWindow),
	})
	if err != nil {
		return fail(fmt.Errorf("dedup check: %w", err))
	}
	if exists {
		result.Outcome = OutcomeSkipped
		return result
	}

	decision := Evaluate(task, now, s.loc)
	result.Kind = decision.Kind
	if !decision.Actionable() {
		result.Outcome = OutcomeNoAction
		return result
	}

	metadata := map[string]any{
		"kind":            string(decision.Kind),
		"due_at":          decision.DueAt.Format(time.RFC3339),
		"hours_until_due": roundHours(decision.HoursUntilDue),
	}
	created, err := s.notifications.Create(ctx, services.CreateNotificationInput{
		UserID:        userID,
		Type:          models.NotificationTypeReminder,
		Title:         s.messages.Title(),
		Message:       s.messages.Body(decision, task.Title),
		ReferenceID:   task.ID,
		ReferenceType: models.ReferenceTask,
		ActionURL:     strings.ReplaceAll(s.taskURL, "{id}", task.ID),
		Metadata:      metadata,
	})
	if err != nil {
		return fail(fmt.Errorf("create reminder: %w", err))
	}

	result.Outcome = OutcomeCreated
	result.NotificationID = created.ID
	return result
}

func roundHours(hours float64) float64 {
	return float64(int64(hours*100)) / 100
}
