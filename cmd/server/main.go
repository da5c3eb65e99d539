package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"collab-engine/internal/broadcast"
	"collab-engine/internal/conflict"
	"collab-engine/internal/config"
	"collab-engine/internal/engine"
	"collab-engine/internal/job"
	"collab-engine/internal/metrics"
	"collab-engine/internal/registry"
	"collab-engine/internal/router"
	"collab-engine/internal/session"
	"collab-engine/internal/storage"
	"collab-engine/internal/websocket"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting collab engine",
		zap.Int("port", cfg.Server.Port),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	ctx := context.Background()
	store, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	m := metrics.New()
	sessions := session.NewManager(cfg.Engine.SessionTimeout(), logger)
	gateway := websocket.NewGateway(sessions.Touch, m, logger)
	hub := broadcast.NewHub(gateway, logger)
	reg := registry.New(store, sessions, hub, m, logger)
	resolver := conflict.NewResolver(cfg.Engine.ConflictWindow())
	eng := engine.New(reg, sessions, resolver, hub, m, logger)

	if err := reg.Init(ctx); err != nil {
		logger.Fatal("Failed to hydrate registry", zap.Error(err))
	}

	// Heartbeat sweep for session expiry.
	scheduler := cron.New(cron.WithSeconds())
	sweep := job.NewHeartbeatJob(eng, logger)
	spec := fmt.Sprintf("@every %ds", cfg.Engine.HeartbeatIntervalSeconds)
	if _, err := scheduler.AddJob(spec, sweep); err != nil {
		logger.Fatal("Failed to schedule heartbeat sweep", zap.Error(err))
	}
	scheduler.Start()

	r := router.Setup(cfg, reg, eng, sessions, gateway, store, m, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Collab engine started", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Flush every workspace before the process exits; autosave may be off
	// for some of them.
	reg.Flush(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited gracefully")
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "redis":
		return storage.NewRedisStore(ctx, cfg.Storage.Redis)
	case "postgres":
		return storage.NewGormStore(cfg.Storage.Postgres.DSN)
	default:
		return storage.NewFileStore(cfg.Storage.FileDir)
	}
}

// initLogger initializes the zap logger with the specified level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      zapLevel == zapcore.DebugLevel,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zcfg.Build()
}
