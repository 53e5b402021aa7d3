package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/token-orientation/internal/config"
	"github.com/jwebster45206/token-orientation/internal/handlers"
	"github.com/jwebster45206/token-orientation/internal/logger"
	"github.com/jwebster45206/token-orientation/internal/middleware"
	"github.com/jwebster45206/token-orientation/internal/observe"
	"github.com/jwebster45206/token-orientation/internal/services/events"
	"github.com/jwebster45206/token-orientation/internal/services/queue"
	"github.com/jwebster45206/token-orientation/internal/storage"
	"github.com/jwebster45206/token-orientation/internal/tokens"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Token Orientation API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"enabled", cfg.EnableModule,
		"default_movement_action", cfg.DefaultMovementAction)

	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceName: "token-orientation-api"})
	if err != nil {
		logger.WithError(log, err).Error("Failed to initialize telemetry")
		os.Exit(1)
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.WithError(log, err).Error("Failed to create metrics")
		os.Exit(1)
	}

	store, err := storage.NewRedisStorage(cfg.RedisURL, log)
	if err != nil {
		logger.WithError(log, err).Error("Failed to create storage")
		os.Exit(1)
	}
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.WaitForConnection(storageCtx); err != nil {
		logger.WithError(log, err).Error("Failed to connect to storage")
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	if cfg.DefaultImagesFile != "" {
		if err := seedWorldDefaults(storageCtx, store, cfg.DefaultImagesFile, log); err != nil {
			logger.WithError(log, err).Error("Failed to load world default images", "file", cfg.DefaultImagesFile)
			os.Exit(1)
		}
	}

	broadcaster := events.NewBroadcaster(store.Client(), log)
	moveQueue := queue.NewMoveQueue(queue.NewClientWithRedis(store.Client(), log))

	// Updates take the same Redis token lock as the workers so a PATCH never
	// interleaves with a queued move.
	tokenService := tokens.NewService(store, broadcaster, log, tokens.Options{
		Enabled:               cfg.EnableModule,
		DefaultMovementAction: cfg.DefaultMovementAction,
		Locker:                queue.NewTokenLocks(store.Client(), cfg.LockTTL),
	}, orientation.WithObserver(metrics))

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(store, log))
	mux.Handle("/metrics", observe.Handler())

	tokensHandler := handlers.NewTokensHandler(tokenService, moveQueue, broadcaster, log)
	mux.Handle("/v1/tokens", tokensHandler)
	mux.Handle("/v1/tokens/", tokensHandler)

	actorsHandler := handlers.NewActorsHandler(store, log)
	mux.Handle("/v1/actors", actorsHandler)
	mux.Handle("/v1/actors/", actorsHandler)

	settingsHandler := handlers.NewSettingsHandler(store, tokenService, log)
	mux.Handle("/v1/settings", settingsHandler)
	mux.Handle("/v1/settings/", settingsHandler)
	mux.Handle("/v1/movement-actions", settingsHandler)

	mux.Handle("/v1/events/", handlers.NewEventsHandler(store.Client(), log))

	handler := observe.Middleware(metrics)(middleware.Logger(mux))
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the events endpoint streams indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(log, err).Error("Server failed to start")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(log, err).Error("Server forced to shutdown")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.WithError(log, err).Error("Error shutting down telemetry")
	}
	if err := store.Close(); err != nil {
		logger.WithError(log, err).Error("Error closing storage connection")
	}

	log.Info("Server exited")
}

// seedWorldDefaults replaces the stored world default images with the
// contents of a YAML file.
func seedWorldDefaults(ctx context.Context, store *storage.RedisStorage, path string, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	world, err := orientation.DecodeWorldDefaults(f)
	if err != nil {
		return err
	}
	if err := store.SaveWorldDefaults(ctx, world); err != nil {
		return err
	}
	log.Info("World default images loaded", "file", path, "actions", len(world))
	return nil
}
