package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"whatsapp-autoreply/internal/models"
)

type DeviceConfigRepository struct {
	db *gorm.DB
}

func NewDeviceConfigRepository(db *gorm.DB) *DeviceConfigRepository {
	return &DeviceConfigRepository{db: db}
}

// FindByDevice returns nil without error when the device has no config.
func (r *DeviceConfigRepository) FindByDevice(ctx context.Context, deviceID string) (*models.DeviceBotConfig, error) {
	cfg, err := r.Get(ctx, deviceID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return cfg, err
}

func (r *DeviceConfigRepository) Get(ctx context.Context, deviceID string) (*models.DeviceBotConfig, error) {
	var cfg models.DeviceBotConfig
	err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get device config: %w", err)
	}
	return &cfg, nil
}

// Upsert creates or fully replaces the config of cfg.DeviceID.
func (r *DeviceConfigRepository) Upsert(ctx context.Context, cfg *models.DeviceBotConfig) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.DeviceBotConfig
		err := tx.Where("device_id = ?", cfg.DeviceID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cfg.ID = 0
			return tx.Create(cfg).Error
		case err != nil:
			return err
		}
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		return tx.Save(cfg).Error
	})
	if err != nil {
		return fmt.Errorf("store: upsert device config: %w", err)
	}
	return nil
}

func (r *DeviceConfigRepository) List(ctx context.Context) ([]models.DeviceBotConfig, error) {
	var cfgs []models.DeviceBotConfig
	if err := r.db.WithContext(ctx).Order("device_id").Find(&cfgs).Error; err != nil {
		return nil, fmt.Errorf("store: list device configs: %w", err)
	}
	return cfgs, nil
}
