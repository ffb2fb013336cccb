package models

import "time"

// Task statuses. Only the open ones are reminder candidates.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusReview     = "review"
	TaskStatusDone       = "done"
	TaskStatusCancelled  = "cancelled"
)

// DefaultOpenTaskStatuses lists the statuses treated as open.
var DefaultOpenTaskStatuses = []string{TaskStatusTodo, TaskStatusInProgress}

// Task mirrors the pipeline tasks owned by the agency application. This service only reads it.
type Task struct {
	BaseModel

	Title      string     `gorm:"type:varchar(255);not null" json:"title"`
	AssigneeID string     `gorm:"type:varchar(64);index:idx_tasks_assignee_status,priority:1" json:"assignee_id"`
	Status     string     `gorm:"type:varchar(32);not null;default:'todo';index:idx_tasks_assignee_status,priority:2" json:"status"`
	DueDate    *time.Time `gorm:"type:date" json:"due_date"`
	DueTime    *string    `gorm:"type:varchar(8)" json:"due_time"` // HH:MM or HH:MM:SS
}
