package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/agenciateixeira/t3-sub001/internal/database/testutil"
	"github.com/agenciateixeira/t3-sub001/internal/models"
	"github.com/agenciateixeira/t3-sub001/internal/services"
)

func newNotificationHandler(t *testing.T) (*NotificationHandler, *services.NotificationService) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := services.NewNotificationService(db, nil)
	require.NoError(t, err)
	handler, err := NewNotificationHandler(svc)
	require.NoError(t, err)
	return handler, svc
}

func TestNotificationHandlerListAndMarkRead(t *testing.T) {
	handler, svc := newNotificationHandler(t)

	for _, title := range []string{"First", "Second"} {
		_, err := svc.Create(context.Background(), services.CreateNotificationInput{
			UserID:        "user-handler",
			Type:          models.NotificationTypeReminder,
			Title:         title,
			Message:       "Task due soon",
			ReferenceID:   "task-1",
			ReferenceType: models.ReferenceTask,
		})
		require.NoError(t, err)
	}

	c, recorder := newTestContext(t, http.MethodGet, "/api/notifications?limit=1", nil, "user-handler")
	handler.List(c)
	require.Equal(t, http.StatusOK, recorder.Code)

	var items []services.NotificationDTO
	payload := decodeResponse(t, recorder, &items)
	require.True(t, payload.Success)
	require.Len(t, items, 1)
	readTitle := items[0].Title
	require.NotNil(t, payload.Meta)
	require.EqualValues(t, 2, payload.Meta.Total)
	require.EqualValues(t, 2, payload.Meta.Unread)
	require.Equal(t, 1, payload.Meta.Limit)

	c, recorder = newTestContext(t, http.MethodPost, "/api/notifications/"+items[0].ID+"/read", nil, "user-handler")
	c.Params = gin.Params{gin.Param{Key: "id", Value: items[0].ID}}
	handler.MarkRead(c)
	require.Equal(t, http.StatusOK, recorder.Code)

	var dto services.NotificationDTO
	decodeResponse(t, recorder, &dto)
	require.True(t, dto.IsRead)
	require.NotNil(t, dto.ReadAt)

	c, recorder = newTestContext(t, http.MethodGet, "/api/notifications/unread_count", nil, "user-handler")
	handler.UnreadCount(c)
	var count map[string]int64
	decodeResponse(t, recorder, &count)
	require.EqualValues(t, 1, count["unread"])

	c, recorder = newTestContext(t, http.MethodGet, "/api/notifications?unread=true", nil, "user-handler")
	handler.List(c)
	decodeResponse(t, recorder, &items)
	require.Len(t, items, 1)
	require.NotEqual(t, readTitle, items[0].Title)
}

func TestNotificationHandlerMarkAllReadAndDelete(t *testing.T) {
	handler, svc := newNotificationHandler(t)

	created, err := svc.Create(context.Background(), services.CreateNotificationInput{
		UserID:  "user-handler",
		Type:    models.NotificationTypeSystem,
		Title:   "Welcome",
		Message: "Hello",
	})
	require.NoError(t, err)

	c, recorder := newTestContext(t, http.MethodPost, "/api/notifications/read_all", nil, "user-handler")
	handler.MarkAllRead(c)
	require.Equal(t, http.StatusOK, recorder.Code)
	var updated map[string]int64
	decodeResponse(t, recorder, &updated)
	require.EqualValues(t, 1, updated["updated"])

	c, recorder = newTestContext(t, http.MethodDelete, "/api/notifications/"+created.ID, nil, "someone-else")
	c.Params = gin.Params{gin.Param{Key: "id", Value: created.ID}}
	handler.Delete(c)
	require.Equal(t, http.StatusNotFound, recorder.Code)

	c, recorder = newTestContext(t, http.MethodDelete, "/api/notifications/"+created.ID, nil, "user-handler")
	c.Params = gin.Params{gin.Param{Key: "id", Value: created.ID}}
	handler.Delete(c)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestNotificationHandlerRequiresUser(t *testing.T) {
	handler, _ := newNotificationHandler(t)

	c, recorder := newTestContext(t, http.MethodGet, "/api/notifications", nil, "")
	handler.List(c)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}
