package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types produced inside this service.
const (
	NotificationTypeReminder = "reminder"
	NotificationTypeSystem   = "system"
)

// Reference types a notification may point at.
const (
	ReferenceTask  = "task"
	ReferenceDeal  = "deal"
	ReferenceEvent = "event"
)

// Notification represents an in-app notification for a user.
type Notification struct {
	BaseModel

	UserID        string         `gorm:"type:varchar(64);not null;index:idx_notifications_user_created,priority:1;index:idx_notifications_dedup,priority:1" json:"user_id"`
	Type          string         `gorm:"type:varchar(64);not null;index:idx_notifications_dedup,priority:3" json:"type"`
	Title         string         `gorm:"type:varchar(255);not null" json:"title"`
	Message       string         `gorm:"type:text" json:"message"`
	ReferenceID   string         `gorm:"type:varchar(64);index:idx_notifications_dedup,priority:2" json:"reference_id"`
	ReferenceType string         `gorm:"type:varchar(32)" json:"reference_type"`
	ActionURL     string         `gorm:"type:text" json:"action_url"`
	Metadata      datatypes.JSON `json:"metadata"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
