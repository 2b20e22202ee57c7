package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"whatsapp-autoreply/internal/models"
)

// Message statuses.
const (
	StatusReceived = "received"
	StatusSent     = "sent"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Save(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("store: save message: %w", err)
	}
	return nil
}

// Recent returns the latest messages of a device, optionally for one contact.
func (r *MessageRepository) Recent(ctx context.Context, deviceID, sender string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if sender != "" {
		q = q.Where("sender = ?", sender)
	}

	var msgs []models.Message
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	return msgs, nil
}
