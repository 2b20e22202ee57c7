package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"whatsapp-autoreply/internal/models"
)

type ActionLogRepository struct {
	db *gorm.DB
}

func NewActionLogRepository(db *gorm.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Append stores one audit row, truncating the message bodies.
func (r *ActionLogRepository) Append(ctx context.Context, entry *models.BotActionLog) error {
	entry.IncomingMessage = truncateRunes(entry.IncomingMessage, MaxLoggedMessageLength)
	if entry.ResponseMessage != nil {
		resp := truncateRunes(*entry.ResponseMessage, MaxLoggedMessageLength)
		entry.ResponseMessage = &resp
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("store: append action log: %w", err)
	}
	return nil
}

type LogFilter struct {
	DeviceID   string
	SenderJID  string
	ActionType string
	Since      time.Time
	Limit      int
}

func (r *ActionLogRepository) List(ctx context.Context, f LogFilter) ([]models.BotActionLog, error) {
	q := r.db.WithContext(ctx).Model(&models.BotActionLog{}).Where("device_id = ?", f.DeviceID)
	if f.SenderJID != "" {
		q = q.Where("sender_jid = ?", f.SenderJID)
	}
	if f.ActionType != "" {
		q = q.Where("action_type = ?", f.ActionType)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var logs []models.BotActionLog
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("store: list action logs: %w", err)
	}
	return logs, nil
}

// CountByType returns the number of rows per action type for a device.
func (r *ActionLogRepository) CountByType(ctx context.Context, deviceID string) (map[string]int64, error) {
	var rows []struct {
		ActionType string
		Count      int64
	}
	err := r.db.WithContext(ctx).Model(&models.BotActionLog{}).
		Select("action_type, COUNT(*) AS count").
		Where("device_id = ?", deviceID).
		Group("action_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: count action logs: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.ActionType] = row.Count
	}
	return out, nil
}
