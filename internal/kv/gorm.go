package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-autoreply/internal/models"
)

// SQL stores entries in the kv_entries table. Expired rows are ignored on read
// and removed by Sweep.
type SQL struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSQL(db *gorm.DB) *SQL {
	return &SQL{db: db, now: time.Now}
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var row models.KVEntry
	err := s.db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, s.now().UTC()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: sql get: %w", err)
	}
	return row.Value, nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	row := models.KVEntry{Key: key, Value: value, ExpiresAt: s.now().UTC().Add(ttl)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("kv: sql set: %w", err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("kv: sql delete: %w", err)
	}
	return nil
}

func (s *SQL) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	var rows []models.KVEntry
	err := s.db.WithContext(ctx).
		Where(`key LIKE ? ESCAPE '\' AND expires_at > ?`, escapeLike(prefix)+"%", s.now().UTC()).
		Order("key").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("kv: sql scan: %w", err)
	}

	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		// sqlite LIKE ignores ASCII case
		if !strings.HasPrefix(r.Key, prefix) {
			continue
		}
		out = append(out, Entry{Key: r.Key, Value: r.Value})
	}
	return out, nil
}

func (s *SQL) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("kv: sql ping: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("kv: sql ping: %w", err)
	}
	return nil
}

// Sweep deletes expired rows.
func (s *SQL) Sweep(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&models.KVEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("kv: sql sweep: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
