package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	iauth "github.com/agenciateixeira/t3-sub001/internal/auth"
	"github.com/agenciateixeira/t3-sub001/internal/realtime"
	"github.com/agenciateixeira/t3-sub001/internal/reminders"
)

func TestRealtimeHandlerUnauthorizedWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	handler := NewRealtimeHandler(hub, jwtSvc, nil, realtime.StreamNotifications)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/realtime", nil)

	handler.Stream(c)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRealtimeHandlerRejectsUnknownStream(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	handler := NewRealtimeHandler(hub, jwtSvc, nil, realtime.StreamNotifications)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/realtime?stream=unknown&token="+token, nil)

	handler.Stream(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRealtimeConnectionOwnsReminderSession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	scanner := &stubScanner{}
	manager, err := reminders.NewManager(scanner, reminders.WithInterval(time.Hour))
	require.NoError(t, err)
	t.Cleanup(manager.CloseAll)

	handler := NewRealtimeHandler(hub, jwtSvc, manager, realtime.DefaultStreams...)
	router := gin.New()
	router.GET("/api/realtime", handler.Stream)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-ws"})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/realtime?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return manager.Len() == 1 && hub.Subscribers(realtime.StreamNotifications, "user-ws") == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return scanner.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastToUser(realtime.StreamNotifications, "user-ws", realtime.Message{
		Stream: realtime.StreamNotifications,
		Event:  "notification.created",
	})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg realtime.Message
	for msg.Event != "notification.created" {
		require.NoError(t, conn.ReadJSON(&msg))
	}

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return manager.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRealtimeSessionSurvivesIdleReaping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	scanner := &stubScanner{}
	manager, err := reminders.NewManager(scanner, reminders.WithInterval(time.Hour))
	require.NoError(t, err)
	t.Cleanup(manager.CloseAll)

	router := gin.New()
	router.GET("/api/realtime", NewRealtimeHandler(hub, jwtSvc, manager, realtime.DefaultStreams...).Stream)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-ws"})
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/realtime?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return manager.Len() == 1 && hub.Subscribers(realtime.StreamNotifications, "user-ws") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Zero(t, manager.ReapIdle(time.Now().Add(4*time.Hour), 3*time.Hour))
	require.Equal(t, 1, manager.Len())

	sessions := manager.Sessions()
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].Connection)
}
