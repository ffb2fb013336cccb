package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agenciateixeira/t3-sub001/internal/api"
	"github.com/agenciateixeira/t3-sub001/internal/app"
	iauth "github.com/agenciateixeira/t3-sub001/internal/auth"
	sharedtestutil "github.com/agenciateixeira/t3-sub001/internal/database/testutil"
	"github.com/agenciateixeira/t3-sub001/internal/models"
	"github.com/agenciateixeira/t3-sub001/internal/push"
	"github.com/agenciateixeira/t3-sub001/internal/realtime"
	"github.com/agenciateixeira/t3-sub001/internal/reminders"
	"github.com/agenciateixeira/t3-sub001/internal/services"
	"github.com/agenciateixeira/t3-sub001/pkg/response"
)

const testVAPIDPublicKey = "BTestPublicKeyForHandlerSuite"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T             *testing.T
	DB            *gorm.DB
	Router        *gin.Engine
	JWT           *iauth.JWTService
	Config        *app.Config
	Notifications *services.NotificationService
	Subscriptions *services.SubscriptionService
	Dispatcher    *push.Dispatcher
	Sessions      *reminders.Manager
	Channel       *RecordingChannel
	Now           time.Time
}

// EnvOption customises NewEnv.
type EnvOption func(*envOptions)

type envOptions struct {
	disablePush bool
	configure   func(*app.Config)
}

// WithoutPush wires the dispatcher without a channel, as when no VAPID keys exist.
func WithoutPush() EnvOption {
	return func(o *envOptions) { o.disablePush = true }
}

// WithConfig adjusts the configuration before the router is built.
func WithConfig(fn func(*app.Config)) EnvOption {
	return func(o *envOptions) { o.configure = fn }
}

// NewEnv provisions a fresh API test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	options := envOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{}
	cfg.Auth.JWT = app.JWTSettings{
		Secret: "test-suite-super-secret-key-32-bytes!!",
		Issuer: "test-suite",
		TTL:    time.Hour,
	}
	cfg.Monitoring.Prometheus.Enabled = true
	cfg.Monitoring.Prometheus.Endpoint = "/metrics"
	cfg.Monitoring.Health.Enabled = true
	cfg.Reminders.OpenStatuses = []string{models.TaskStatusTodo, models.TaskStatusInProgress}
	if options.configure != nil {
		options.configure(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	hub := realtime.NewHub()

	notifications, err := services.NewNotificationService(db, hub)
	require.NoError(t, err)
	subscriptions, err := services.NewSubscriptionService(db)
	require.NoError(t, err)

	env := &Env{
		T:             t,
		DB:            db,
		JWT:           jwtSvc,
		Config:        cfg,
		Notifications: notifications,
		Subscriptions: subscriptions,
		Channel:       &RecordingChannel{},
		Now:           time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}

	var channel push.Channel = env.Channel
	publicKey := testVAPIDPublicKey
	if options.disablePush {
		channel, publicKey = nil, ""
	}

	env.Dispatcher, err = push.NewDispatcher(channel, subscriptions)
	require.NoError(t, err)
	notifications.AddCreatedListener(env.Dispatcher)

	tasks, err := services.NewTaskService(db, cfg.Reminders.OpenStatuses)
	require.NoError(t, err)

	scanner, err := reminders.NewScanner(tasks, notifications,
		reminders.WithClock(func() time.Time { return env.Now }),
		reminders.WithLocation(time.UTC),
		reminders.WithLocale("en"),
	)
	require.NoError(t, err)

	env.Sessions, err = reminders.NewManager(scanner, reminders.WithInterval(time.Hour))
	require.NoError(t, err)
	t.Cleanup(func() {
		env.Sessions.CloseAll()
		env.Dispatcher.Wait()
	})

	env.Router, err = api.NewRouter(api.Dependencies{
		DB:             db,
		Config:         cfg,
		JWT:            jwtSvc,
		Hub:            hub,
		Notifications:  notifications,
		Subscriptions:  subscriptions,
		Dispatcher:     env.Dispatcher,
		VAPIDPublicKey: publicKey,
		Sessions:       env.Sessions,
		Scanner:        scanner,
	})
	require.NoError(t, err)

	return env
}

// Token mints an access token for the given user.
func (e *Env) Token(userID string) string {
	e.T.Helper()

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID})
	require.NoError(e.T, err)
	return token
}

// CreateTask inserts a task assigned to userID, due at the given UTC instant.
func (e *Env) CreateTask(userID, title string, due time.Time) *models.Task {
	e.T.Helper()

	date := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	clock := due.Format("15:04")
	task := &models.Task{
		Title:      title,
		AssigneeID: userID,
		Status:     models.TaskStatusTodo,
		DueDate:    &date,
		DueTime:    &clock,
	}
	require.NoError(e.T, e.DB.Create(task).Error)
	return task
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// RecordingChannel is a push channel that records payloads instead of sending them.
// Endpoints listed in Gone answer 410.
type RecordingChannel struct {
	mu   sync.Mutex
	sent []push.Target
	Gone map[string]bool
}

// Send records the target.
func (c *RecordingChannel) Send(_ context.Context, target push.Target, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Gone[target.Endpoint] {
		return &push.StatusError{StatusCode: http.StatusGone}
	}
	c.sent = append(c.sent, target)
	return nil
}

// Sent returns a copy of the delivered targets.
func (c *RecordingChannel) Sent() []push.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]push.Target(nil), c.sent...)
}
