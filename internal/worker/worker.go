// Package worker drains the move queue. Each move runs under a Redis lock on
// its token, so no two moves for one token are applied at once, whether they
// land on different workers or on consumers inside one worker. A move that
// finds its token locked goes back to the tail of the queue; under contention
// moves for a token may apply out of order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/internal/observe"
	"github.com/jwebster45206/token-orientation/internal/services/events"
	"github.com/jwebster45206/token-orientation/internal/services/queue"
	"github.com/jwebster45206/token-orientation/internal/tokens"
	queuePkg "github.com/jwebster45206/token-orientation/pkg/queue"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollTimeout = 5 * time.Second
	defaultLockTTL     = 30 * time.Second
	defaultMaxAttempts = 100
)

// Options configures a Worker. Zero values pick defaults.
type Options struct {
	ID          string
	Concurrency int // Consumers pulling from the queue at once
	PollTimeout time.Duration
	LockTTL     time.Duration
	MaxAttempts int              // Requeues allowed before a move is dropped
	Metrics     *observe.Metrics // Optional
}

// Worker processes moves from the queue
type Worker struct {
	id          string
	queue       *queue.MoveQueue
	tokens      *tokens.Service
	broadcaster *events.Broadcaster
	locks       *queue.TokenLocks
	metrics     *observe.Metrics
	log         *slog.Logger

	concurrency int
	pollTimeout time.Duration
	maxAttempts int

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new worker instance
func New(q *queue.MoveQueue, svc *tokens.Service, redisClient *redis.Client, log *slog.Logger, opts Options) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.ID == "" {
		opts.ID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	return &Worker{
		id:          opts.ID,
		queue:       q,
		tokens:      svc,
		broadcaster: events.NewBroadcaster(redisClient, log),
		locks:       queue.NewTokenLocks(redisClient, opts.LockTTL),
		metrics:     opts.Metrics,
		log:         log.With("worker_id", opts.ID),
		concurrency: opts.Concurrency,
		pollTimeout: opts.PollTimeout,
		maxAttempts: opts.MaxAttempts,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the worker's identity, which is also the lock value it writes.
func (w *Worker) ID() string {
	return w.id
}

// Start runs the worker's consumers until Stop is called.
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "concurrency", w.concurrency)

	var g errgroup.Group
	for i := range w.concurrency {
		owner := w.lockOwner(i)
		g.Go(func() error {
			return w.consume(owner)
		})
	}
	err := g.Wait()
	w.log.Info("Worker shutting down")
	return err
}

// lockOwner names consumer i in the locks it writes. A single consumer uses
// the worker ID.
func (w *Worker) lockOwner(i int) string {
	if w.concurrency == 1 {
		return w.id
	}
	return fmt.Sprintf("%s/%d", w.id, i)
}

func (w *Worker) consume(owner string) error {
	for {
		select {
		case <-w.ctx.Done():
			return nil
		default:
			if err := w.processNext(owner); err != nil {
				if w.ctx.Err() != nil {
					continue
				}
				w.log.Error("Error processing move", "error", err, "consumer", owner)
				select {
				case <-w.ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested")
	w.cancel()
}

// processNext pulls the next move from the queue and applies it.
func (w *Worker) processNext(owner string) error {
	req, err := w.queue.BlockingDequeue(w.ctx, w.pollTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue move: %w", err)
	}
	if req == nil {
		return nil
	}

	w.log.Debug("Received move from queue",
		"request_id", req.RequestID,
		"token_id", req.TokenID,
		"attempts", req.Attempts,
	)

	locked, err := w.acquireTokenLock(req.TokenID, owner)
	if err != nil {
		if requeueErr := w.queue.Enqueue(w.ctx, req); requeueErr != nil {
			w.log.Error("Failed to return move to queue", "request_id", req.RequestID, "error", requeueErr)
		}
		return err
	}
	if !locked {
		return w.requeue(req)
	}
	defer w.releaseTokenLock(req.TokenID, owner)

	return w.process(req)
}

// requeue puts a move whose token is locked back on the queue, or drops it
// once it has waited too long.
func (w *Worker) requeue(req *queuePkg.MoveRequest) error {
	if req.Attempts >= w.maxAttempts {
		w.log.Warn("Dropping move after too many attempts",
			"request_id", req.RequestID,
			"token_id", req.TokenID,
			"attempts", req.Attempts,
		)
		w.recordMove("dropped")
		w.publishFailure(req, "token stayed locked")
		return nil
	}

	w.log.Debug("Token locked, re-queueing move", "request_id", req.RequestID, "token_id", req.TokenID)
	if err := w.queue.Requeue(w.ctx, req); err != nil {
		return fmt.Errorf("failed to re-queue move: %w", err)
	}
	w.recordMove("requeued")
	return nil
}

// acquireTokenLock reports whether owner now holds the token's lock. The API
// takes the same lock, so a queued move never interleaves with a PATCH.
func (w *Worker) acquireTokenLock(tokenID uuid.UUID, owner string) (bool, error) {
	return w.locks.TryAcquire(w.ctx, tokenID, owner)
}

func (w *Worker) releaseTokenLock(tokenID uuid.UUID, owner string) {
	if err := w.locks.Release(tokenID, owner); err != nil {
		w.log.Error("Failed to release token lock", "error", err, "token_id", tokenID)
	}
}

// process applies one move through the token service.
func (w *Worker) process(req *queuePkg.MoveRequest) error {
	start := time.Now()

	// The Redis lock is already ours; the service must not wait on it again.
	ctx := tokens.WithHeldLock(w.ctx, req.TokenID)
	res, err := w.tokens.Update(ctx, req.TokenID, req.Patch, tokens.UpdateOptions{})
	if err != nil {
		w.recordMove("error")
		w.publishFailure(req, err.Error())
		if errors.Is(err, tokens.ErrTokenNotFound) {
			// Nothing to retry; the token is gone.
			w.log.Warn("Dropping move for missing token", "request_id", req.RequestID, "token_id", req.TokenID)
			return nil
		}
		return fmt.Errorf("failed to apply move %s: %w", req.RequestID, err)
	}

	w.recordMove("ok")
	attrs := []any{
		"request_id", req.RequestID,
		"token_id", req.TokenID,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if res.Orientation != nil {
		attrs = append(attrs, "direction", res.Orientation.Direction.String(), "written", res.Orientation.Written)
	}
	w.log.Info("Move applied", attrs...)
	return nil
}

func (w *Worker) publishFailure(req *queuePkg.MoveRequest, msg string) {
	if err := w.broadcaster.PublishMoveFailed(w.ctx, req.TokenID, req.RequestID, msg); err != nil {
		w.log.Error("Failed to publish failure event", "error", err)
	}
}

func (w *Worker) recordMove(status string) {
	if w.metrics != nil {
		w.metrics.RecordMove(w.ctx, status)
	}
}
