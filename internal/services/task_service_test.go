package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agenciateixeira/t3-sub001/internal/database/testutil"
	"github.com/agenciateixeira/t3-sub001/internal/models"
)

func TestTaskServiceOpenTasksForAssignee(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewTaskService(db, nil)
	require.NoError(t, err)
	require.Equal(t, models.DefaultOpenTaskStatuses, svc.OpenStatuses())

	due := func(day int) *time.Time {
		value := time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
		return &value
	}

	tasks := []models.Task{
		{BaseModel: models.BaseModel{ID: "t-late"}, Title: "Later", AssigneeID: "user-1", Status: models.TaskStatusTodo, DueDate: due(20)},
		{BaseModel: models.BaseModel{ID: "t-soon"}, Title: "Soon", AssigneeID: "user-1", Status: models.TaskStatusInProgress, DueDate: due(11)},
		{BaseModel: models.BaseModel{ID: "t-done"}, Title: "Done", AssigneeID: "user-1", Status: models.TaskStatusDone, DueDate: due(11)},
		{BaseModel: models.BaseModel{ID: "t-nodue"}, Title: "No due", AssigneeID: "user-1", Status: models.TaskStatusTodo},
		{BaseModel: models.BaseModel{ID: "t-other"}, Title: "Other", AssigneeID: "user-2", Status: models.TaskStatusTodo, DueDate: due(11)},
	}
	for i := range tasks {
		require.NoError(t, db.Create(&tasks[i]).Error)
	}

	rows, err := svc.OpenTasksForAssignee(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "t-soon", rows[0].ID)
	require.Equal(t, "t-late", rows[1].ID)

	_, err = svc.OpenTasksForAssignee(context.Background(), " ")
	require.Error(t, err)
}

func TestTaskServiceCustomOpenStatuses(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewTaskService(db, []string{"review", " review ", ""})
	require.NoError(t, err)
	require.Equal(t, []string{"review"}, svc.OpenStatuses())

	due := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.Task{Title: "Review", AssigneeID: "user-1", Status: models.TaskStatusReview, DueDate: &due}).Error)
	require.NoError(t, db.Create(&models.Task{Title: "Todo", AssigneeID: "user-1", Status: models.TaskStatusTodo, DueDate: &due}).Error)

	rows, err := svc.OpenTasksForAssignee(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Review", rows[0].Title)
}
