package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/agenciateixeira/t3-sub001/internal/models"
	"github.com/agenciateixeira/t3-sub001/internal/realtime"
	"github.com/agenciateixeira/t3-sub001/internal/services"
	"github.com/agenciateixeira/t3-sub001/pkg/logger"
	"github.com/agenciateixeira/t3-sub001/pkg/metrics"
)

const (
	defaultConcurrency     = 4
	defaultDispatchTimeout = 30 * time.Second
)

// Delivery outcomes for a single subscription.
const (
	OutcomeDelivered   = "delivered"
	OutcomeDeactivated = "deactivated"
	OutcomeFailed      = "failed"
)

// SubscriptionStore is the part of the subscription registry the dispatcher drives.
type SubscriptionStore interface {
	ListActive(ctx context.Context, userID string) ([]models.PushSubscription, error)
	Deactivate(ctx context.Context, userID, endpoint string) error
	Touch(ctx context.Context, userID, endpoint string) error
}

// Payload is the JSON document delivered to the service worker.
type Payload struct {
	Title         string `json:"title"`
	Message       string `json:"message"`
	Type          string `json:"type"`
	ReferenceID   string `json:"reference_id,omitempty"`
	ReferenceType string `json:"reference_type,omitempty"`
	URL           string `json:"url,omitempty"`
}

// DeliveryResult is the outcome for one subscription.
type DeliveryResult struct {
	Endpoint string `json:"endpoint"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

// DeliveryReport aggregates one fan-out.
type DeliveryReport struct {
	NotificationID string           `json:"notification_id"`
	UserID         string           `json:"user_id"`
	Attempted      int              `json:"attempted"`
	Succeeded      int              `json:"succeeded"`
	Deactivated    int              `json:"deactivated"`
	Failed         int              `json:"failed"`
	Skipped        bool             `json:"skipped"`
	Error          string           `json:"error,omitempty"`
	Results        []DeliveryResult `json:"results,omitempty"`
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchConcurrency bounds parallel sends per notification.
func WithDispatchConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithRateLimit throttles sends across all notifications. Zero disables throttling.
func WithRateLimit(perSecond float64, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		if perSecond <= 0 {
			d.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithDispatchTimeout bounds background deliveries started by NotificationCreated.
func WithDispatchTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithReportBroadcaster publishes background delivery reports on the push stream.
func WithReportBroadcaster(b realtime.Broadcaster) DispatcherOption {
	return func(d *Dispatcher) {
		d.broadcaster = b
	}
}

// Dispatcher fans new notifications out to a user's active subscriptions.
type Dispatcher struct {
	channel       Channel
	subscriptions SubscriptionStore
	concurrency   int
	limiter       *rate.Limiter
	timeout       time.Duration
	broadcaster   realtime.Broadcaster
	log           *zap.Logger

	inflight sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher. A nil channel disables delivery: every dispatch is skipped.
func NewDispatcher(channel Channel, subscriptions SubscriptionStore, opts ...DispatcherOption) (*Dispatcher, error) {
	if subscriptions == nil {
		return nil, errors.New("push dispatcher: subscription store is required")
	}
	d := &Dispatcher{
		channel:       channel,
		subscriptions: subscriptions,
		concurrency:   defaultConcurrency,
		timeout:       defaultDispatchTimeout,
		log:           logger.WithModule("push"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Enabled reports whether a push channel is configured.
func (d *Dispatcher) Enabled() bool {
	return d.channel != nil
}

// Dispatch delivers the notification to every active subscription of its owner.
// Per-subscription failures are recorded in the report and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, notification services.NotificationDTO) DeliveryReport {
	report := DeliveryReport{NotificationID: notification.ID, UserID: notification.UserID}
	if d.channel == nil {
		report.Skipped = true
		metrics.PushDeliveries.WithLabelValues("skipped").Inc()
		return report
	}

	payload, err := json.Marshal(Payload{
		Title:         notification.Title,
		Message:       notification.Message,
		Type:          notification.Type,
		ReferenceID:   notification.ReferenceID,
		ReferenceType: notification.ReferenceType,
		URL:           notification.ActionURL,
	})
	if err != nil {
		report.Error = fmt.Sprintf("encode payload: %v", err)
		return report
	}

	subscriptions, err := d.subscriptions.ListActive(ctx, notification.UserID)
	if err != nil {
		report.Error = err.Error()
		d.log.Warn("list subscriptions failed", zap.String("user_id", notification.UserID), zap.Error(err))
		return report
	}

	results := make([]DeliveryResult, len(subscriptions))
	var group errgroup.Group
	group.SetLimit(d.concurrency)
	for i := range subscriptions {
		sub := subscriptions[i]
		group.Go(func() error {
			results[i] = d.deliver(ctx, sub, payload)
			return nil
		})
	}
	_ = group.Wait()

	report.Attempted = len(results)
	report.Results = results
	for _, result := range results {
		switch result.Outcome {
		case OutcomeDelivered:
			report.Succeeded++
		case OutcomeDeactivated:
			report.Deactivated++
		default:
			report.Failed++
		}
	}
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, sub models.PushSubscription, payload []byte) DeliveryResult {
	result := DeliveryResult{Endpoint: sub.Endpoint}
	log := d.log.With(zap.String("user_id", sub.UserID), zap.String("endpoint", sub.Endpoint))

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			result.Outcome = OutcomeFailed
			result.Error = err.Error()
			metrics.PushDeliveries.WithLabelValues("transient").Inc()
			return result
		}
	}

	err := d.channel.Send(ctx, Target{
		UserID:   sub.UserID,
		Endpoint: sub.Endpoint,
		P256dh:   sub.P256dh,
		Auth:     sub.Auth,
	}, payload)

	switch {
	case err == nil:
		result.Outcome = OutcomeDelivered
		metrics.PushDeliveries.WithLabelValues("success").Inc()
		if touchErr := d.subscriptions.Touch(ctx, sub.UserID, sub.Endpoint); touchErr != nil {
			log.Debug("touch subscription failed", zap.Error(touchErr))
		}
	case Permanent(err):
		result.Outcome = OutcomeDeactivated
		result.Error = err.Error()
		metrics.PushDeliveries.WithLabelValues("gone").Inc()
		if deactivateErr := d.subscriptions.Deactivate(ctx, sub.UserID, sub.Endpoint); deactivateErr != nil {
			result.Outcome = OutcomeFailed
			result.Error = deactivateErr.Error()
			log.Warn("deactivate subscription failed", zap.Error(deactivateErr))
			break
		}
		log.Info("subscription gone, deactivated")
	default:
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		metrics.PushDeliveries.WithLabelValues("transient").Inc()
		log.Warn("push delivery failed", zap.Error(err))
	}
	return result
}

// NotificationCreated dispatches in the background so the creator is never blocked.
func (d *Dispatcher) NotificationCreated(ctx context.Context, notification services.NotificationDTO) {
	if d.channel == nil {
		return
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		report := d.Dispatch(dispatchCtx, notification)
		if report.Attempted > 0 {
			d.log.Debug("push fan-out finished",
				zap.String("notification_id", report.NotificationID),
				zap.Int("attempted", report.Attempted),
				zap.Int("succeeded", report.Succeeded),
				zap.Int("deactivated", report.Deactivated),
				zap.Int("failed", report.Failed),
			)
		}
		if d.broadcaster != nil {
			d.broadcaster.BroadcastToUser(realtime.StreamPush, notification.UserID, realtime.Message{
				Event: "push.delivery_report",
				Data:  report,
			})
		}
	}()
}

// Wait blocks until background deliveries finish.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}
