package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"whatsapp-autoreply/internal/app"
	"whatsapp-autoreply/internal/config"
	"whatsapp-autoreply/internal/database"
	"whatsapp-autoreply/internal/logging"
)

// openApp builds the same components the server uses, without starting any
// transport. Tests replace it.
var openApp = func(ctx context.Context) (*app.Application, error) {
	cfg := config.LoadConfig()
	logging.Init(cfg)
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	if cfg.KVBackend == "memory" {
		zap.L().Warn("KV_BACKEND=memory: botctl cannot see the server's conversations")
	}
	return app.New(ctx, cfg, db)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
