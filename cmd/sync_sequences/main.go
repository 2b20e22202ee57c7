package main

import (
	"go.uber.org/zap"

	"whatsapp-autoreply/internal/config"
	"whatsapp-autoreply/internal/database"
	"whatsapp-autoreply/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	flush := logging.Init(cfg)
	defer flush()

	db := database.InitGorm(cfg)

	tables := []string{
		"device_bot_configs",
		"auto_reply_rules",
		"bot_action_logs",
		"messages",
	}

	zap.L().Info("syncing PostgreSQL sequences")

	for _, table := range tables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.Exec(query).Error; err != nil {
			zap.L().Error("error syncing sequence", zap.String("table", table), zap.Error(err))
		} else {
			zap.L().Info("synced sequence", zap.String("table", table))
		}
	}
}
