package database

import (
	"gorm.io/gorm"

	"github.com/agenciateixeira/t3-sub001/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Task{},
		&models.Notification{},
		&models.PushSubscription{},
		&models.SystemSetting{},
	)
}
