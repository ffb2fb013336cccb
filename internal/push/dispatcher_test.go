package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agenciateixeira/t3-sub001/internal/database/testutil"
	"github.com/agenciateixeira/t3-sub001/internal/models"
	"github.com/agenciateixeira/t3-sub001/internal/realtime"
	"github.com/agenciateixeira/t3-sub001/internal/services"
)

type fakeChannel struct {
	mu       sync.Mutex
	errs     map[string]error
	payloads map[string][]byte
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{errs: map[string]error{}, payloads: map[string][]byte{}}
}

func (f *fakeChannel) Send(_ context.Context, target Target, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[target.Endpoint] = payload
	return f.errs[target.Endpoint]
}

func (f *fakeChannel) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type dispatchFixture struct {
	subscriptions *services.SubscriptionService
	notifications *services.NotificationService
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	subscriptions, err := services.NewSubscriptionService(db)
	require.NoError(t, err)
	notifications, err := services.NewNotificationService(db, nil)
	require.NoError(t, err)
	return &dispatchFixture{subscriptions: subscriptions, notifications: notifications}
}

func (f *dispatchFixture) register(t *testing.T, userID, endpoint string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)

	_, err = f.subscriptions.Register(context.Background(), services.RegisterSubscriptionInput{
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(secret),
	})
	require.NoError(t, err)
}

func reminderDTO(userID string) services.NotificationDTO {
	return services.NotificationDTO{
		ID:            "notification-1",
		UserID:        userID,
		Type:          models.NotificationTypeReminder,
		Title:         "Task Reminder",
		Message:       `The task "Send proposal" is due today`,
		ReferenceID:   "task-1",
		ReferenceType: models.ReferenceTask,
		ActionURL:     "/tasks/task-1",
	}
}

func TestDispatchIsolatesGoneSubscription(t *testing.T) {
	f := newDispatchFixture(t)
	endpoints := []string{
		"https://push.example.com/1",
		"https://push.example.com/2",
		"https://push.example.com/3",
	}
	for _, endpoint := range endpoints {
		f.register(t, "user-1", endpoint)
	}

	channel := newFakeChannel()
	channel.errs[endpoints[1]] = &StatusError{StatusCode: http.StatusGone}

	dispatcher, err := NewDispatcher(channel, f.subscriptions)
	require.NoError(t, err)

	report := dispatcher.Dispatch(context.Background(), reminderDTO("user-1"))

	require.False(t, report.Skipped)
	require.Equal(t, 3, report.Attempted)
	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, 1, report.Deactivated)
	require.Equal(t, 0, report.Failed)

	active, err := f.subscriptions.ListActive(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, sub := range active {
		require.NotEqual(t, endpoints[1], sub.Endpoint)
	}
}

func TestDispatchTransientFailureKeepsSubscription(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, "user-1", "https://push.example.com/1")
	f.register(t, "user-1", "https://push.example.com/2")

	channel := newFakeChannel()
	channel.errs["https://push.example.com/1"] = errors.New("connection reset")
	channel.errs["https://push.example.com/2"] = &StatusError{StatusCode: http.StatusTooManyRequests}

	dispatcher, err := NewDispatcher(channel, f.subscriptions, WithDispatchConcurrency(1))
	require.NoError(t, err)

	report := dispatcher.Dispatch(context.Background(), reminderDTO("user-1"))
	require.Equal(t, 2, report.Attempted)
	require.Equal(t, 2, report.Failed)
	require.Zero(t, report.Deactivated)

	active, err := f.subscriptions.ListActive(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
}

func TestDispatchPayloadShape(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, "user-1", "https://push.example.com/1")

	channel := newFakeChannel()
	dispatcher, err := NewDispatcher(channel, f.subscriptions)
	require.NoError(t, err)

	dispatcher.Dispatch(context.Background(), reminderDTO("user-1"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(channel.payloads["https://push.example.com/1"], &payload))
	require.Equal(t, "Task Reminder", payload["title"])
	require.Equal(t, `The task "Send proposal" is due today`, payload["message"])
	require.Equal(t, models.NotificationTypeReminder, payload["type"])
	require.Equal(t, "task-1", payload["reference_id"])
	require.Equal(t, models.ReferenceTask, payload["reference_type"])
	require.Equal(t, "/tasks/task-1", payload["url"])
}

func TestDispatchIgnoresInactiveAndForeignSubscriptions(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, "user-1", "https://push.example.com/mine")
	f.register(t, "user-1", "https://push.example.com/old")
	f.register(t, "user-2", "https://push.example.com/theirs")
	require.NoError(t, f.subscriptions.Deactivate(context.Background(), "user-1", "https://push.example.com/old"))

	channel := newFakeChannel()
	dispatcher, err := NewDispatcher(channel, f.subscriptions)
	require.NoError(t, err)

	report := dispatcher.Dispatch(context.Background(), reminderDTO("user-1"))
	require.Equal(t, 1, report.Attempted)
	require.Equal(t, 1, channel.sent())
}

func TestDispatchWithoutChannelIsSkipped(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, "user-1", "https://push.example.com/1")

	dispatcher, err := NewDispatcher(nil, f.subscriptions)
	require.NoError(t, err)
	require.False(t, dispatcher.Enabled())
	f.notifications.AddCreatedListener(dispatcher)

	created, err := f.notifications.Create(context.Background(), services.CreateNotificationInput{
		UserID: "user-1",
		Type:   models.NotificationTypeReminder,
		Title:  "Task Reminder",
	})
	require.NoError(t, err)

	page, err := f.notifications.ListForUser(context.Background(), services.ListNotificationsInput{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	report := dispatcher.Dispatch(context.Background(), *created)
	require.True(t, report.Skipped)
	require.Zero(t, report.Attempted)
	dispatcher.Wait()
}

func TestNotificationCreatedDeliversInBackground(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, "user-1", "https://push.example.com/1")

	channel := newFakeChannel()
	broadcaster := &reportCollector{}
	dispatcher, err := NewDispatcher(channel, f.subscriptions,
		WithDispatchTimeout(time.Second),
		WithReportBroadcaster(broadcaster),
	)
	require.NoError(t, err)
	f.notifications.AddCreatedListener(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = f.notifications.Create(ctx, services.CreateNotificationInput{
		UserID: "user-1",
		Type:   models.NotificationTypeReminder,
		Title:  "Task Reminder",
	})
	cancel()
	require.NoError(t, err)

	dispatcher.Wait()
	require.Equal(t, 1, channel.sent())

	messages := broadcaster.all()
	require.Len(t, messages, 1)
	require.Equal(t, realtime.StreamPush, messages[0].Stream)
	report, ok := messages[0].Data.(DeliveryReport)
	require.True(t, ok)
	require.Equal(t, 1, report.Succeeded)
}

func TestDispatchRateLimitHonoursContext(t *testing.T) {
	f := newDispatchFixture(t)
	f.register(t, "user-1", "https://push.example.com/1")
	f.register(t, "user-1", "https://push.example.com/2")

	dispatcher, err := NewDispatcher(newFakeChannel(), f.subscriptions,
		WithRateLimit(0.001, 1),
		WithDispatchConcurrency(1),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	report := dispatcher.Dispatch(ctx, reminderDTO("user-1"))
	require.Equal(t, 2, report.Attempted)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 1, report.Failed)
}

func TestNewDispatcherRequiresStore(t *testing.T) {
	_, err := NewDispatcher(newFakeChannel(), nil)
	require.Error(t, err)
}

type reportCollector struct {
	mu       sync.Mutex
	messages []realtime.Message
}

func (r *reportCollector) BroadcastToUser(stream, _ string, message realtime.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	message.Stream = stream
	r.messages = append(r.messages, message)
}

func (r *reportCollector) all() []realtime.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Message(nil), r.messages...)
}
