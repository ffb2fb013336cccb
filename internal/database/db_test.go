package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agenciateixeira/t3-sub001/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Exec("SELECT 1").Error)
	require.NoError(t, Ping(context.Background(), db))
}

func TestOpenSQLiteMemoryHandlesAreIsolated(t *testing.T) {
	first := openTestDB(t)
	second := openTestDB(t)

	require.NoError(t, AutoMigrate(first))
	require.NoError(t, first.Create(&models.Task{Title: "isolated", Status: models.TaskStatusTodo}).Error)

	require.False(t, second.Migrator().HasTable(&models.Task{}))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestAutoMigrateAndSeedCreatesTables(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db))

	for _, model := range []any{&models.Task{}, &models.Notification{}, &models.PushSubscription{}, &models.SystemSetting{}} {
		require.True(t, db.Migrator().HasTable(model))
	}
	require.True(t, db.Migrator().HasIndex(&models.PushSubscription{}, "idx_push_subscriptions_user_endpoint"))
	require.True(t, db.Migrator().HasIndex(&models.Notification{}, "idx_notifications_dedup"))
}

func TestAutoMigrateAndSeedRejectsNilHandle(t *testing.T) {
	require.Error(t, AutoMigrateAndSeed(nil))
}

func TestTimestampsStoredInUTC(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	task := models.Task{Title: "utc", Status: models.TaskStatusTodo}
	require.NoError(t, db.Create(&task).Error)
	require.Equal(t, time.UTC, task.CreatedAt.Location())
}

func TestCloseNilHandle(t *testing.T) {
	require.NoError(t, Close(nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = Close(db)
	})

	return db
}
