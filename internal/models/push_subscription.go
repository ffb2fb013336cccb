package models

import "time"

// PushSubscription is a Web Push endpoint registered by one of a user's devices.
type PushSubscription struct {
	BaseModel

	UserID     string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_push_subscriptions_user_endpoint,priority:1" json:"user_id"`
	Endpoint   string     `gorm:"type:varchar(768);not null;uniqueIndex:idx_push_subscriptions_user_endpoint,priority:2" json:"endpoint"`
	P256dh     string     `gorm:"column:p256dh;type:varchar(255);not null" json:"p256dh"`
	Auth       string     `gorm:"type:varchar(64);not null" json:"auth"`
	UserAgent  string     `gorm:"type:varchar(512)" json:"user_agent"`
	Active     bool       `gorm:"not null;default:true;index" json:"active"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
