package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeTokenMoved     EventType = "token.moved"
	EventTypeTextureUpdated EventType = "token.texture_updated"
	EventTypeMoveQueued     EventType = "move.queued"
	EventTypeMoveFailed     EventType = "move.failed"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	TokenID   string         `json:"token_id"`
	RequestID string         `json:"request_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Channel returns the pub/sub channel carrying a token's events.
func Channel(tokenID uuid.UUID) string {
	return fmt.Sprintf("token:%s:events", tokenID.String())
}

// Broadcaster publishes token events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishTokenMoved publishes a token.moved event
func (b *Broadcaster) PublishTokenMoved(ctx context.Context, tokenID uuid.UUID, x, y float64, direction orientation.Direction) error {
	return b.publish(ctx, tokenID, Event{
		Type: EventTypeTokenMoved,
		Data: map[string]any{
			"x":         x,
			"y":         y,
			"direction": direction.String(),
		},
	})
}

// PublishTextureUpdated publishes a token.texture_updated event for an
// image written by the orientation engine.
func (b *Broadcaster) PublishTextureUpdated(ctx context.Context, tokenID uuid.UUID, res orientation.Result) error {
	return b.publish(ctx, tokenID, Event{
		Type: EventTypeTextureUpdated,
		Data: map[string]any{
			"texture_src": string(res.Image),
			"direction":   res.Direction.String(),
			"rule":        res.Rule,
			"source":      string(res.Source),
		},
	})
}

// PublishMoveQueued publishes a move.queued event
func (b *Broadcaster) PublishMoveQueued(ctx context.Context, tokenID uuid.UUID, requestID string) error {
	return b.publish(ctx, tokenID, Event{
		Type:      EventTypeMoveQueued,
		RequestID: requestID,
		Data:      map[string]any{"status": "queued"},
	})
}

// PublishMoveFailed publishes a move.failed event
func (b *Broadcaster) PublishMoveFailed(ctx context.Context, tokenID uuid.UUID, requestID string, errorMsg string) error {
	return b.publish(ctx, tokenID, Event{
		Type:      EventTypeMoveFailed,
		RequestID: requestID,
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	})
}

func (b *Broadcaster) publish(ctx context.Context, tokenID uuid.UUID, event Event) error {
	channel := Channel(tokenID)
	event.TokenID = tokenID.String()

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)
	return nil
}
