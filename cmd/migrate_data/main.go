package main

import (
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"whatsapp-autoreply/internal/config"
	"whatsapp-autoreply/internal/database"
	"whatsapp-autoreply/internal/logging"
	"whatsapp-autoreply/internal/models"
)

const batchSize = 500

// Copies the bot tables from the SQLite file at DB_PATH into the PostgreSQL
// database described by DB_HOST etc. Run sync_sequences afterwards.
func main() {
	cfg := config.LoadConfig()
	flush := logging.Init(cfg)
	defer flush()

	if cfg.DBType != "postgres" && cfg.DBType != "postgresql" {
		zap.L().Fatal("destination must be postgres, set DB_TYPE=postgres", zap.String("db_type", cfg.DBType))
	}

	sqliteDB, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		zap.L().Fatal("failed to connect to SQLite", zap.Error(err))
	}
	zap.L().Info("connected to SQLite", zap.String("path", cfg.DBPath))

	pgDB := database.InitGorm(cfg)

	zap.L().Info("starting data migration")
	migrateTable[models.DeviceBotConfig](sqliteDB, pgDB, "device_bot_configs")
	migrateTable[models.AutoReplyRule](sqliteDB, pgDB, "auto_reply_rules")
	migrateTable[models.BotActionLog](sqliteDB, pgDB, "bot_action_logs")
	migrateTable[models.Message](sqliteDB, pgDB, "messages")
	migrateTable[models.SystemSetting](sqliteDB, pgDB, "system_settings")
	// kv_entries are short-lived conversation state and are not copied.
	zap.L().Info("migration completed")
}

func migrateTable[T any](src, dst *gorm.DB, table string) {
	var rows []T
	copied := 0
	res := src.Model(new(T)).FindInBatches(&rows, batchSize, func(_ *gorm.DB, _ int) error {
		if err := dst.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&rows).Error
		}); err != nil {
			return err
		}
		copied += len(rows)
		return nil
	})
	if res.Error != nil {
		zap.L().Error("error migrating table", zap.String("table", table), zap.Int("copied", copied), zap.Error(res.Error))
		return
	}
	zap.L().Info("migrated table", zap.String("table", table), zap.Int("rows", copied))
}
