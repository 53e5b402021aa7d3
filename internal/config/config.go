package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	RedisURL string // redis:// URL of the Redis server

	// Orientation
	EnableModule          bool   // When false, moves never change a token's image
	DefaultImagesFile     string // YAML file seeding world default images; empty to skip
	DefaultMovementAction string // Movement action for tokens that never set one

	// Worker
	WorkerID    string
	Concurrency int           // Moves a worker applies at once, each on a different token
	LockTTL     time.Duration // How long a worker holds a token lock
	PollTimeout time.Duration // How long a worker blocks waiting for a move
}

func Load() (*Config, error) {
	var errs []error

	enabled, err := parseBool("ENABLE_MODULE", getEnv("ENABLE_MODULE", "true"))
	errs = append(errs, err)
	lockTTL, err := parseDuration("WORKER_LOCK_TTL", getEnv("WORKER_LOCK_TTL", "30s"))
	errs = append(errs, err)
	pollTimeout, err := parseDuration("WORKER_POLL_TIMEOUT", getEnv("WORKER_POLL_TIMEOUT", "5s"))
	errs = append(errs, err)
	concurrency, err := parsePositiveInt("WORKER_CONCURRENCY", getEnv("WORKER_CONCURRENCY", "1"))
	errs = append(errs, err)

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		Environment:           getEnv("ENVIRONMENT", "development"),
		LogLevel:              parseLogLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		EnableModule:          enabled,
		DefaultImagesFile:     os.Getenv("DEFAULT_IMAGES_FILE"),
		DefaultMovementAction: getEnv("DEFAULT_MOVEMENT_ACTION", "walk"),
		WorkerID:              os.Getenv("WORKER_ID"),
		Concurrency:           concurrency,
		LockTTL:               lockTTL,
		PollTimeout:           pollTimeout,
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric, got %q", cfg.Port))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, value)
	}
	return b, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func parsePositiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, value)
	}
	return n, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
