package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/token-orientation/internal/config"
	"github.com/jwebster45206/token-orientation/internal/logger"
	"github.com/jwebster45206/token-orientation/internal/observe"
	"github.com/jwebster45206/token-orientation/internal/services/events"
	"github.com/jwebster45206/token-orientation/internal/services/queue"
	"github.com/jwebster45206/token-orientation/internal/storage"
	"github.com/jwebster45206/token-orientation/internal/tokens"
	"github.com/jwebster45206/token-orientation/internal/worker"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Token Orientation Worker",
		"environment", cfg.Environment,
		"enabled", cfg.EnableModule)

	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceName: "token-orientation-worker"})
	if err != nil {
		logger.WithError(log, err).Error("Failed to initialize telemetry")
		os.Exit(1)
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.WithError(log, err).Error("Failed to create metrics")
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer startCancel()

	// The queue gets its own connection so blocking pops never starve
	// storage reads and lock calls.
	queueClient, err := queue.NewClient(startCtx, cfg.RedisURL, log)
	if err != nil {
		logger.WithError(log, err).Error("Failed to create queue client")
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.WithError(log, err).Error("Error closing queue client")
		}
	}()
	moveQueue := queue.NewMoveQueue(queueClient)
	log.Info("Queue service initialized successfully")

	store, err := storage.NewRedisStorage(cfg.RedisURL, log)
	if err != nil {
		logger.WithError(log, err).Error("Failed to create storage")
		os.Exit(1)
	}
	if err := store.WaitForConnection(startCtx); err != nil {
		logger.WithError(log, err).Error("Failed to connect to storage")
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(log, err).Error("Error closing storage connection")
		}
	}()
	log.Info("Storage service initialized successfully")

	tokenService := tokens.NewService(store, events.NewBroadcaster(store.Client(), log), log, tokens.Options{
		Enabled:               cfg.EnableModule,
		DefaultMovementAction: cfg.DefaultMovementAction,
	}, orientation.WithObserver(metrics))

	w := worker.New(moveQueue, tokenService, store.Client(), log, worker.Options{
		ID:          cfg.WorkerID,
		Concurrency: cfg.Concurrency,
		PollTimeout: cfg.PollTimeout,
		LockTTL:     cfg.LockTTL,
		Metrics:     metrics,
	})

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			logger.WithError(log, err).Error("Worker error")
			os.Exit(1)
		}
	}()

	log.Info("Worker started, waiting for moves...", "worker_id", w.ID())

	<-quit
	log.Info("Worker shutdown signal received")
	w.Stop()

	// Give the worker time to finish its current move
	select {
	case <-done:
	case <-time.After(cfg.PollTimeout + 2*time.Second):
		log.Warn("Worker did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.WithError(log, err).Error("Error shutting down telemetry")
	}

	log.Info("Worker exited")
}
