package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"github.com/redis/go-redis/v9"
)

func setupBroadcaster(t *testing.T) (*Broadcaster, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewBroadcaster(client, logger), client
}

func receive(t *testing.T, ch <-chan *redis.Message) Event {
	t.Helper()
	select {
	case msg := <-ch:
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("Failed to unmarshal event: %v", err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("6f1c1c1e-2f4b-4f57-9a63-0c7b1f7f7b11")
	if got := Channel(id); got != "token:6f1c1c1e-2f4b-4f57-9a63-0c7b1f7f7b11:events" {
		t.Errorf("Channel() = %q", got)
	}
}

func TestBroadcaster_Publish(t *testing.T) {
	b, client := setupBroadcaster(t)
	ctx := context.Background()
	tokenID := uuid.New()

	sub := client.Subscribe(ctx, Channel(tokenID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	ch := sub.Channel()

	if err := b.PublishTokenMoved(ctx, tokenID, 3, 4, orientation.East); err != nil {
		t.Fatalf("PublishTokenMoved() error = %v", err)
	}
	ev := receive(t, ch)
	if ev.Type != EventTypeTokenMoved {
		t.Errorf("Type = %q, want %q", ev.Type, EventTypeTokenMoved)
	}
	if ev.TokenID != tokenID.String() {
		t.Errorf("TokenID = %q, want %q", ev.TokenID, tokenID)
	}
	if ev.Data["direction"] != "E" {
		t.Errorf("direction = %v, want E", ev.Data["direction"])
	}

	res := orientation.Result{Direction: orientation.North, Image: "fly_n.png", Rule: "flying", Source: orientation.SourceRule}
	if err := b.PublishTextureUpdated(ctx, tokenID, res); err != nil {
		t.Fatalf("PublishTextureUpdated() error = %v", err)
	}
	ev = receive(t, ch)
	if ev.Type != EventTypeTextureUpdated {
		t.Errorf("Type = %q, want %q", ev.Type, EventTypeTextureUpdated)
	}
	if ev.Data["texture_src"] != "fly_n.png" || ev.Data["rule"] != "flying" {
		t.Errorf("Data = %v", ev.Data)
	}

	if err := b.PublishMoveFailed(ctx, tokenID, "req-1", "token not found"); err != nil {
		t.Fatalf("PublishMoveFailed() error = %v", err)
	}
	ev = receive(t, ch)
	if ev.Type != EventTypeMoveFailed || ev.RequestID != "req-1" {
		t.Errorf("event = %+v", ev)
	}
}
