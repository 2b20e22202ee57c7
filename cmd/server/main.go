package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"whatsapp-autoreply/internal/app"
	"whatsapp-autoreply/internal/config"
	"whatsapp-autoreply/internal/database"
	"whatsapp-autoreply/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	flush := logging.Init(cfg)
	defer flush()

	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db := database.InitGorm(cfg)
	database.SyncConfig(db, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, db)
	if err != nil {
		zap.L().Fatal("failed to build application", zap.Error(err))
	}
	if err := application.Start(ctx); err != nil {
		zap.L().Fatal("failed to start background jobs", zap.Error(err))
	}

	router, webhookHandler := application.Router()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("server starting", zap.String("port", cfg.Port), zap.String("kv_backend", cfg.KVBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ProcessTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("http shutdown", zap.Error(err))
	}
	webhookHandler.Wait()
	application.Stop()
}
