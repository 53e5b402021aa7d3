package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwebster45206/token-orientation/pkg/queue"
	"github.com/redis/go-redis/v9"
)

// MovesKey is the Redis list holding pending moves.
const MovesKey = "moves"

// MoveQueue is a FIFO of token moves shared by the API and the workers.
type MoveQueue struct {
	client *Client
}

func NewMoveQueue(client *Client) *MoveQueue {
	return &MoveQueue{client: client}
}

// Enqueue adds a move to the end of the queue
func (q *MoveQueue) Enqueue(ctx context.Context, req *queue.MoveRequest) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize move: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, MovesKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue move: %w", err)
	}
	return nil
}

// Requeue puts a move back at the end of the queue and counts the attempt.
func (q *MoveQueue) Requeue(ctx context.Context, req *queue.MoveRequest) error {
	req.Attempts++
	return q.Enqueue(ctx, req)
}

// BlockingDequeue waits up to timeout for a move. It returns nil, nil when
// the timeout passes with the queue empty.
func (q *MoveQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.MoveRequest, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, MovesKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue move: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	req, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse move: %w", err)
	}
	return req, nil
}

// Peek returns up to limit queued moves without removing them. A limit of
// zero or less returns all of them.
func (q *MoveQueue) Peek(ctx context.Context, limit int) ([]*queue.MoveRequest, error) {
	end := int64(limit - 1)
	if limit <= 0 {
		end = -1
	}
	items, err := q.client.rdb.LRange(ctx, MovesKey, 0, end).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to peek moves: %w", err)
	}

	reqs := make([]*queue.MoveRequest, 0, len(items))
	for _, item := range items {
		req, err := queue.FromJSON([]byte(item))
		if err != nil {
			q.client.logger.Warn("Skipping malformed queued move", "error", err)
			continue
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Depth returns the number of queued moves
func (q *MoveQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, MovesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}
