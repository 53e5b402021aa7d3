package queue

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/queue"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client, err := NewClient(context.Background(), "redis://"+mr.Addr(), logger)
	if err != nil {
		t.Fatalf("Failed to create queue client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func move(x float64) *queue.MoveRequest {
	return queue.NewMoveRequest(uuid.New(), actor.TokenPatch{X: &x})
}

func TestMoveQueue_EnqueueAndDequeue(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewMoveQueue(client)
	ctx := context.Background()

	first, second := move(1), move(2)
	for _, req := range []*queue.MoveRequest{first, second} {
		if err := q.Enqueue(ctx, req); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if depth != 2 {
		t.Errorf("Depth() = %d, want 2", depth)
	}

	got, err := q.BlockingDequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("BlockingDequeue() error = %v", err)
	}
	if got == nil || got.RequestID != first.RequestID {
		t.Fatalf("BlockingDequeue() = %+v, want first request", got)
	}
	if got.Patch.X == nil || *got.Patch.X != 1 {
		t.Errorf("Patch.X = %v, want 1", got.Patch.X)
	}

	depth, _ = q.Depth(ctx)
	if depth != 1 {
		t.Errorf("Depth() after dequeue = %d, want 1", depth)
	}
}

func TestMoveQueue_BlockingDequeueTimeout(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewMoveQueue(client)

	got, err := q.BlockingDequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("BlockingDequeue() error = %v", err)
	}
	if got != nil {
		t.Errorf("BlockingDequeue() = %+v, want nil on empty queue", got)
	}
}

func TestMoveQueue_BlockingDequeueMalformed(t *testing.T) {
	client, mr := setupTestRedis(t)
	q := NewMoveQueue(client)

	if _, err := mr.Push(MovesKey, "{not json"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, err := q.BlockingDequeue(context.Background(), time.Second); err == nil {
		t.Error("BlockingDequeue() with malformed entry should return error")
	}
}

func TestMoveQueue_Requeue(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewMoveQueue(client)
	ctx := context.Background()

	req := move(3)
	if err := q.Requeue(ctx, req); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	got, err := q.BlockingDequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("BlockingDequeue() error = %v", err)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
}

func TestMoveQueue_Peek(t *testing.T) {
	client, mr := setupTestRedis(t)
	q := NewMoveQueue(client)
	ctx := context.Background()

	for i := range 3 {
		if err := q.Enqueue(ctx, move(float64(i))); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	if _, err := mr.Push(MovesKey, "garbage"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"limited", 2, 2},
		{"all skips malformed", 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := q.Peek(ctx, tt.limit)
			if err != nil {
				t.Fatalf("Peek() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Peek(%d) returned %d moves, want %d", tt.limit, len(got), tt.want)
			}
		})
	}

	depth, _ := q.Depth(ctx)
	if depth != 4 {
		t.Errorf("Depth() after Peek = %d, want 4", depth)
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	if _, err := NewClient(context.Background(), "redis://"+addr, logger); err == nil {
		t.Error("NewClient() against closed server should return error")
	}
}
