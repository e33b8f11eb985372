package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
)

const (
	errorMessageLoadSettings = "storage: load settings"
	errorMessageSaveSettings = "storage: save settings"
)

// SettingsStore loads and saves the single settings record, caching it after the first read.
type SettingsStore struct {
	database *gorm.DB
	mutex    sync.RWMutex
	cached   *model.Settings
}

// NewSettingsStore constructs a settings store backed by the database.
func NewSettingsStore(database *gorm.DB) *SettingsStore {
	return &SettingsStore{database: database}
}

// Load returns the current settings, creating the record with defaults on first access.
func (store *SettingsStore) Load(ctx context.Context) (model.Settings, error) {
	store.mutex.RLock()
	if store.cached != nil {
		settings := store.cached.Clone()
		store.mutex.RUnlock()
		return settings, nil
	}
	store.mutex.RUnlock()

	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.cached != nil {
		return store.cached.Clone(), nil
	}

	settings, loadErr := store.loadOrCreate(ctx)
	if loadErr != nil {
		return model.Settings{}, loadErr
	}
	store.cached = &settings
	return settings.Clone(), nil
}

// Save normalizes the input, persists it, and refreshes the cache.
func (store *SettingsStore) Save(ctx context.Context, input model.SettingsInput) (model.Settings, error) {
	settings := model.NormalizeSettings(input)

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.database.WithContext(ctx).Save(&settings).Error; err != nil {
		return model.Settings{}, fmt.Errorf("%s: %w", errorMessageSaveSettings, err)
	}
	store.cached = &settings
	return settings.Clone(), nil
}

func (store *SettingsStore) loadOrCreate(ctx context.Context) (model.Settings, error) {
	var settings model.Settings
	err := store.database.WithContext(ctx).First(&settings, "id = ?", model.SettingsRecordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := model.DefaultSettings()
		if createErr := store.database.WithContext(ctx).Create(&defaults).Error; createErr != nil {
			return model.Settings{}, fmt.Errorf("%s: %w", errorMessageLoadSettings, createErr)
		}
		return defaults, nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("%s: %w", errorMessageLoadSettings, err)
	}
	if settings.Emails == nil {
		settings.Emails = []string{}
	}
	if settings.Webhooks == nil {
		settings.Webhooks = []string{}
	}
	return settings, nil
}
