package api_test

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agenciateixeira/t3-sub001/internal/app"
	"github.com/agenciateixeira/t3-sub001/internal/handlers/testutil"
	"github.com/agenciateixeira/t3-sub001/internal/push"
	"github.com/agenciateixeira/t3-sub001/internal/reminders"
	"github.com/agenciateixeira/t3-sub001/internal/services"
)

func subscriptionBody(t *testing.T, endpoint string) map[string]any {
	t.Helper()

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)

	return map[string]any{
		"endpoint": endpoint,
		"keys": map[string]string{
			"p256dh": base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			"auth":   base64.RawURLEncoding.EncodeToString(secret),
		},
	}
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/health", "/api/health"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, w.Code, path)
	}

	for _, path := range []string{"/api/notifications", "/api/push/subscriptions", "/api/reminders/sessions"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
		resp := testutil.DecodeResponse(t, w)
		require.False(t, resp.Success)
		require.NotNil(t, resp.Error)
	}

	w := env.Request(http.MethodGet, "/api/notifications", nil, "not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodGet, "/api/notifications", nil, env.Token("user-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestRouter_UnknownRoute(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/unknown", nil, env.Token("user-1"))
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	env.Request(http.MethodGet, "/health", nil, "")
	w := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_HealthDisabled(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(func(cfg *app.Config) {
		cfg.Monitoring.Health.Enabled = false
	}))

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ReminderScanDeliversPush(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token("user-1")

	w := env.Request(http.MethodPost, "/api/push/subscriptions", subscriptionBody(t, "https://push.example.com/device-a"), token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env.CreateTask("user-1", "Aprovar layout", env.Now.Add(3*time.Hour))
	env.CreateTask("user-2", "Outro usuario", env.Now.Add(3*time.Hour))

	w = env.Request(http.MethodPost, "/api/reminders/scan", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report reminders.CycleReport
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &report)
	require.Equal(t, "user-1", report.UserID)
	require.Equal(t, 1, report.Created)

	// A second cycle inside the dedup window creates nothing new.
	w = env.Request(http.MethodPost, "/api/reminders/scan", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &report)
	require.Equal(t, 0, report.Created)
	require.Equal(t, 1, report.Skipped)

	env.Dispatcher.Wait()
	sent := env.Channel.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "user-1", sent[0].UserID)
	require.Equal(t, "https://push.example.com/device-a", sent[0].Endpoint)

	w = env.Request(http.MethodGet, "/api/notifications/unread_count", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"unread":1`)

	w = env.Request(http.MethodGet, "/api/notifications/unread_count", nil, env.Token("user-2"))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"unread":0`)
}

func TestRouter_PushTestDeactivatesGoneEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Channel.Gone = map[string]bool{"https://push.example.com/stale": true}
	token := env.Token("user-1")

	for _, endpoint := range []string{"https://push.example.com/live", "https://push.example.com/stale"} {
		w := env.Request(http.MethodPost, "/api/push/subscriptions", subscriptionBody(t, endpoint), token)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := env.Request(http.MethodPost, "/api/push/test", map[string]string{"title": "Ping"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report push.DeliveryReport
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &report)
	require.Equal(t, 2, report.Attempted)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 1, report.Deactivated)

	w = env.Request(http.MethodGet, "/api/push/subscriptions", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var subs []services.SubscriptionDTO
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &subs)
	require.Len(t, subs, 2)
	for _, sub := range subs {
		require.Equal(t, sub.Endpoint == "https://push.example.com/live", sub.Active, sub.Endpoint)
	}
}

func TestRouter_PushUnavailableWithoutKeys(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithoutPush())
	token := env.Token("user-1")

	w := env.Request(http.MethodGet, "/api/push/vapid_public_key", nil, token)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.Request(http.MethodPost, "/api/push/test", nil, token)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.Request(http.MethodGet, "/health", nil, "")
	require.Contains(t, w.Body.String(), `"component":"push","status":"degraded"`)
}

func TestRouter_ReminderSessionLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token("user-1")

	w := env.Request(http.MethodPost, "/api/reminders/sessions", nil, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var info reminders.SessionInfo
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &info)
	require.NotEmpty(t, info.ID)
	require.Equal(t, 1, env.Sessions.Len())

	w = env.Request(http.MethodPost, "/api/reminders/sessions/"+info.ID+"/heartbeat", nil, env.Token("user-2"))
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodPost, "/api/reminders/sessions/"+info.ID+"/heartbeat", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/reminders/sessions/"+info.ID+"/scan", nil, token)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = env.Request(http.MethodDelete, "/api/reminders/sessions/"+info.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 0, env.Sessions.Len())
}
