package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"whatsapp-autoreply/internal/models"
)

type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ActiveRules returns the active rules of a device, highest priority first
// and oldest first within a priority.
func (r *RuleRepository) ActiveRules(ctx context.Context, deviceID string) ([]models.AutoReplyRule, error) {
	var rules []models.AutoReplyRule
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND is_active = ?", deviceID, true).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("store: active rules: %w", err)
	}
	return rules, nil
}

func (r *RuleRepository) List(ctx context.Context, deviceID string) ([]models.AutoReplyRule, error) {
	var rules []models.AutoReplyRule
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("store: list rules: %w", err)
	}
	return rules, nil
}

func (r *RuleRepository) Get(ctx context.Context, deviceID string, id uint) (*models.AutoReplyRule, error) {
	var rule models.AutoReplyRule
	err := r.db.WithContext(ctx).Where("device_id = ? AND id = ?", deviceID, id).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get rule: %w", err)
	}
	return &rule, nil
}

func (r *RuleRepository) Create(ctx context.Context, rule *models.AutoReplyRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("store: create rule: %w", err)
	}
	return nil
}

// Update writes every field of an existing rule.
func (r *RuleRepository) Update(ctx context.Context, rule *models.AutoReplyRule) error {
	existing, err := r.Get(ctx, rule.DeviceID, rule.ID)
	if err != nil {
		return err
	}
	rule.CreatedAt = existing.CreatedAt
	if err := r.db.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("store: update rule: %w", err)
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, deviceID string, id uint) error {
	res := r.db.WithContext(ctx).Where("device_id = ? AND id = ?", deviceID, id).Delete(&models.AutoReplyRule{})
	if res.Error != nil {
		return fmt.Errorf("store: delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RuleRepository) SetActive(ctx context.Context, deviceID string, id uint, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.AutoReplyRule{}).
		Where("device_id = ? AND id = ?", deviceID, id).
		Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("store: toggle rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
