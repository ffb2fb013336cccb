package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/agenciateixeira/t3-sub001/internal/models"
)

const (
	VAPIDPublicKeySetting  = "push.vapid_public_key"
	VAPIDPrivateKeySetting = "push.vapid_private_key"
)

// VAPIDKeys is the application server key pair used to sign push requests.
type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
}

// Complete reports whether both halves of the pair are present.
func (k VAPIDKeys) Complete() bool {
	return strings.TrimSpace(k.PublicKey) != "" && strings.TrimSpace(k.PrivateKey) != ""
}

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// LoadVAPIDKeys returns the persisted key pair. Missing keys yield an incomplete pair, not an error.
func LoadVAPIDKeys(ctx context.Context, db *gorm.DB) (VAPIDKeys, error) {
	public, err := GetSystemSetting(ctx, db, VAPIDPublicKeySetting)
	if err != nil {
		return VAPIDKeys{}, err
	}
	private, err := GetSystemSetting(ctx, db, VAPIDPrivateKeySetting)
	if err != nil {
		return VAPIDKeys{}, err
	}
	return VAPIDKeys{PublicKey: strings.TrimSpace(public), PrivateKey: strings.TrimSpace(private)}, nil
}

// StoreVAPIDKeys persists both halves of the key pair atomically.
func StoreVAPIDKeys(ctx context.Context, db *gorm.DB, keys VAPIDKeys) error {
	if !keys.Complete() {
		return fmt.Errorf("system settings: vapid key pair is incomplete")
	}
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := UpsertSystemSetting(ctx, tx, VAPIDPublicKeySetting, keys.PublicKey); err != nil {
			return err
		}
		return UpsertSystemSetting(ctx, tx, VAPIDPrivateKeySetting, keys.PrivateKey)
	})
}
