package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/agenciateixeira/t3-sub001/internal/models"
)

// TaskService reads reminder candidates from the shared tasks table.
type TaskService struct {
	db           *gorm.DB
	openStatuses []string
}

// NewTaskService constructs a TaskService. An empty status list falls back to the default open set.
func NewTaskService(db *gorm.DB, openStatuses []string) (*TaskService, error) {
	if db == nil {
		return nil, errors.New("task service: db is required")
	}
	statuses := normaliseIDs(openStatuses)
	if len(statuses) == 0 {
		statuses = append([]string(nil), models.DefaultOpenTaskStatuses...)
	}
	return &TaskService{db: db, openStatuses: statuses}, nil
}

// OpenStatuses returns the statuses considered open.
func (s *TaskService) OpenStatuses() []string {
	return append([]string(nil), s.openStatuses...)
}

// OpenTasksForAssignee returns open tasks with a due date assigned to the user, earliest first.
func (s *TaskService) OpenTasksForAssignee(ctx context.Context, userID string) ([]models.Task, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("task service: user id is required")
	}

	var rows []models.Task
	if err := s.db.WithContext(ctx).
		Where("assignee_id = ?", userID).
		Where("status IN ?", s.openStatuses).
		Where("due_date IS NOT NULL").
		Order("due_date ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("task service: list open tasks: %w", err)
	}
	return rows, nil
}
