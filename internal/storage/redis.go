package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"github.com/jwebster45206/token-orientation/pkg/storage"
	"github.com/redis/go-redis/v9"
)

const (
	tokenIndexKey    = "tokens"
	worldDefaultsKey = "settings:default-images"
)

func actorKey(id uuid.UUID) string       { return "actor:" + id.String() }
func tokenKey(id uuid.UUID) string       { return "token:" + id.String() }
func orientationKey(id uuid.UUID) string { return "orientation:" + id.String() }

// RedisStorage implements the Storage interface using Redis. Every value is
// stored as JSON without expiry.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance from a redis:// URL.
func NewRedisStorage(redisURL string, logger *slog.Logger) (*RedisStorage, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisStorageWithClient(redis.NewClient(opt), logger), nil
}

// NewRedisStorageWithClient wraps an existing client.
func NewRedisStorageWithClient(client *redis.Client, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{client: client, logger: logger}
}

// Client returns the underlying Redis client for components that share it.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// setJSON marshals v and stores it under key.
func (r *RedisStorage) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// getJSON loads key into v. It reports false when the key does not exist.
func (r *RedisStorage) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Actor operations

func (r *RedisStorage) SaveActor(ctx context.Context, spec *actor.ActorSpec) error {
	if spec == nil {
		return errors.New("actor cannot be nil")
	}
	if err := r.setJSON(ctx, actorKey(spec.ID), spec); err != nil {
		r.logger.Error("Failed to save actor", "actor_id", spec.ID, "error", err)
		return err
	}
	return nil
}

func (r *RedisStorage) LoadActor(ctx context.Context, id uuid.UUID) (*actor.ActorSpec, error) {
	var spec actor.ActorSpec
	found, err := r.getJSON(ctx, actorKey(id), &spec)
	if err != nil {
		r.logger.Error("Failed to load actor", "actor_id", id, "error", err)
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("actor %s: %w", id, storage.ErrNotFound)
	}
	return &spec, nil
}

// DeleteActor removes the actor and its orientation config.
func (r *RedisStorage) DeleteActor(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, actorKey(id), orientationKey(id)).Err(); err != nil {
		r.logger.Error("Failed to delete actor", "actor_id", id, "error", err)
		return fmt.Errorf("failed to delete actor: %w", err)
	}
	return nil
}

// Token operations

func (r *RedisStorage) SaveToken(ctx context.Context, tok *actor.Token) error {
	if tok == nil {
		return errors.New("token cannot be nil")
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, tokenKey(tok.ID), data, 0)
	pipe.SAdd(ctx, tokenIndexKey, tok.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save token", "token_id", tok.ID, "error", err)
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadToken(ctx context.Context, id uuid.UUID) (*actor.Token, error) {
	var tok actor.Token
	found, err := r.getJSON(ctx, tokenKey(id), &tok)
	if err != nil {
		r.logger.Error("Failed to load token", "token_id", id, "error", err)
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("token %s: %w", id, storage.ErrNotFound)
	}
	return &tok, nil
}

func (r *RedisStorage) DeleteToken(ctx context.Context, id uuid.UUID) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, tokenKey(id))
	pipe.SRem(ctx, tokenIndexKey, id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to delete token", "token_id", id, "error", err)
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// ListTokens returns the IDs of every saved token. Malformed index entries
// are skipped.
func (r *RedisStorage) ListTokens(ctx context.Context) ([]uuid.UUID, error) {
	members, err := r.client.SMembers(ctx, tokenIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			r.logger.Warn("Skipping malformed token index entry", "entry", m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Orientation config operations

// LoadOrientationConfig returns the actor's normalized config, or an empty
// one when nothing was ever saved. A stored value that no longer decodes is
// logged and treated as empty so movement keeps working.
func (r *RedisStorage) LoadOrientationConfig(ctx context.Context, actorID uuid.UUID) (orientation.Config, error) {
	data, err := r.client.Get(ctx, orientationKey(actorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return orientation.NewConfig(), nil
		}
		r.logger.Error("Failed to load orientation config", "actor_id", actorID, "error", err)
		return orientation.Config{}, fmt.Errorf("failed to load orientation config: %w", err)
	}

	var cfg orientation.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		r.logger.Warn("Stored orientation config is malformed, using empty config",
			"actor_id", actorID, "error", err)
		return orientation.NewConfig(), nil
	}
	return cfg.Normalize(), nil
}

// SaveOrientationConfig replaces the actor's config. Last writer wins.
func (r *RedisStorage) SaveOrientationConfig(ctx context.Context, actorID uuid.UUID, cfg orientation.Config) error {
	if err := r.setJSON(ctx, orientationKey(actorID), cfg.Normalize()); err != nil {
		r.logger.Error("Failed to save orientation config", "actor_id", actorID, "error", err)
		return err
	}
	return nil
}

// World default operations

func (r *RedisStorage) LoadWorldDefaults(ctx context.Context) (orientation.WorldDefaults, error) {
	var w orientation.WorldDefaults
	found, err := r.getJSON(ctx, worldDefaultsKey, &w)
	if err != nil {
		r.logger.Error("Failed to load world default images", "error", err)
		return nil, err
	}
	if !found {
		return orientation.WorldDefaults{}, nil
	}
	return w.Normalize(), nil
}

func (r *RedisStorage) SaveWorldDefaults(ctx context.Context, w orientation.WorldDefaults) error {
	if err := r.setJSON(ctx, worldDefaultsKey, w.Normalize()); err != nil {
		r.logger.Error("Failed to save world default images", "error", err)
		return err
	}
	return nil
}
