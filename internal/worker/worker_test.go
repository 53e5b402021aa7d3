package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/internal/observe"
	"github.com/jwebster45206/token-orientation/internal/services/events"
	"github.com/jwebster45206/token-orientation/internal/services/queue"
	"github.com/jwebster45206/token-orientation/internal/tokens"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	queuePkg "github.com/jwebster45206/token-orientation/pkg/queue"
	"github.com/jwebster45206/token-orientation/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type harness struct {
	worker *Worker
	queue  *queue.MoveQueue
	svc    *tokens.Service
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	reader *sdkmetric.ManualReader
	tok    *actor.Token
}

func setupWorker(t *testing.T) harness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	q := queue.NewMoveQueue(queue.NewClientWithRedis(rdb, logger))

	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	svc := tokens.NewService(storage.NewMockStorage(), nil, logger, tokens.Options{Enabled: true})
	tok, err := svc.Create(context.Background(), &actor.Token{Name: "crate"})
	require.NoError(t, err)

	w := New(q, svc, rdb, logger, Options{ID: "worker-test", PollTimeout: time.Second, MaxAttempts: 3, Metrics: metrics})
	t.Cleanup(w.Stop)

	return harness{worker: w, queue: q, svc: svc, mr: mr, rdb: rdb, reader: reader, tok: tok}
}

func moveTo(tokenID uuid.UUID, x float64) *queuePkg.MoveRequest {
	return queuePkg.NewMoveRequest(tokenID, actor.TokenPatch{X: &x})
}

// moveStatuses returns the orientation.moves.processed counts by status.
func moveStatuses(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "orientation.moves.processed" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				out[status.AsString()] += dp.Value
			}
		}
	}
	return out
}

func subscribe(t *testing.T, rdb *redis.Client, tokenID uuid.UUID) <-chan *redis.Message {
	t.Helper()
	sub := rdb.Subscribe(context.Background(), events.Channel(tokenID))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)
	return sub.Channel()
}

func receiveEvent(t *testing.T, ch <-chan *redis.Message) events.Event {
	t.Helper()
	select {
	case msg := <-ch:
		var ev events.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestWorker_AppliesMove(t *testing.T) {
	h := setupWorker(t)
	ctx := context.Background()

	require.NoError(t, h.queue.Enqueue(ctx, moveTo(h.tok.ID, 7)))
	require.NoError(t, h.worker.processNext(h.worker.ID()))

	tok, err := h.svc.Get(ctx, h.tok.ID)
	require.NoError(t, err)
	assert.Equal(t, 7.0, tok.X)

	assert.False(t, h.mr.Exists(queue.LockKey(h.tok.ID)), "lock should be released")
	assert.Equal(t, int64(1), moveStatuses(t, h.reader)["ok"])
}

func TestWorker_EmptyQueue(t *testing.T) {
	h := setupWorker(t)
	assert.NoError(t, h.worker.processNext(h.worker.ID()))
	assert.Empty(t, moveStatuses(t, h.reader))
}

func TestWorker_RequeuesWhenLocked(t *testing.T) {
	h := setupWorker(t)
	ctx := context.Background()
	require.NoError(t, h.mr.Set(queue.LockKey(h.tok.ID), "worker-other"))

	require.NoError(t, h.queue.Enqueue(ctx, moveTo(h.tok.ID, 7)))
	require.NoError(t, h.worker.processNext(h.worker.ID()))

	queued, err := h.queue.Peek(ctx, 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, 1, queued[0].Attempts)

	tok, err := h.svc.Get(ctx, h.tok.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, tok.X, "move must wait for the lock")

	owner, err := h.mr.Get(queue.LockKey(h.tok.ID))
	require.NoError(t, err)
	assert.Equal(t, "worker-other", owner)
	assert.Equal(t, int64(1), moveStatuses(t, h.reader)["requeued"])
}

func TestWorker_DropsAfterMaxAttempts(t *testing.T) {
	h := setupWorker(t)
	ctx := context.Background()
	require.NoError(t, h.mr.Set(queue.LockKey(h.tok.ID), "worker-other"))
	ch := subscribe(t, h.rdb, h.tok.ID)

	req := moveTo(h.tok.ID, 7)
	req.Attempts = 3
	require.NoError(t, h.queue.Enqueue(ctx, req))
	require.NoError(t, h.worker.processNext(h.worker.ID()))

	depth, err := h.queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	ev := receiveEvent(t, ch)
	assert.Equal(t, events.EventTypeMoveFailed, ev.Type)
	assert.Equal(t, req.RequestID, ev.RequestID)
	assert.Equal(t, int64(1), moveStatuses(t, h.reader)["dropped"])
}

func TestWorker_MissingToken(t *testing.T) {
	h := setupWorker(t)
	ctx := context.Background()
	missing := uuid.New()
	ch := subscribe(t, h.rdb, missing)

	require.NoError(t, h.queue.Enqueue(ctx, moveTo(missing, 1)))
	assert.NoError(t, h.worker.processNext(h.worker.ID()))

	ev := receiveEvent(t, ch)
	assert.Equal(t, events.EventTypeMoveFailed, ev.Type)
	assert.False(t, h.mr.Exists(queue.LockKey(missing)))
	assert.Equal(t, int64(1), moveStatuses(t, h.reader)["error"])
}

func TestWorker_ReleaseOnlyOwnLock(t *testing.T) {
	h := setupWorker(t)
	require.NoError(t, h.mr.Set(queue.LockKey(h.tok.ID), "worker-other"))

	h.worker.releaseTokenLock(h.tok.ID, h.worker.ID())

	assert.True(t, h.mr.Exists(queue.LockKey(h.tok.ID)))
}

func TestWorker_LockTTL(t *testing.T) {
	h := setupWorker(t)

	locked, err := h.worker.acquireTokenLock(h.tok.ID, h.worker.ID())
	require.NoError(t, err)
	require.True(t, locked)
	assert.Equal(t, defaultLockTTL, h.mr.TTL(queue.LockKey(h.tok.ID)))

	locked, err = h.worker.acquireTokenLock(h.tok.ID, h.worker.ID())
	require.NoError(t, err)
	assert.False(t, locked, "second acquire must fail while held")
}

func TestWorker_StartStop(t *testing.T) {
	h := setupWorker(t)
	ctx := context.Background()
	require.NoError(t, h.queue.Enqueue(ctx, moveTo(h.tok.ID, 2)))

	done := make(chan error, 1)
	go func() { done <- h.worker.Start() }()

	assert.Eventually(t, func() bool {
		tok, err := h.svc.Get(ctx, h.tok.ID)
		return err == nil && tok.X == 2
	}, 3*time.Second, 20*time.Millisecond)

	h.worker.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_SharesLockWithService(t *testing.T) {
	h := setupWorker(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	// An API-side service guarding updates with the same Redis lock.
	locks := queue.NewTokenLocks(h.rdb, time.Second)
	store := storage.NewMockStorage()
	svc := tokens.NewService(store, nil, logger, tokens.Options{Enabled: true, Locker: locks})
	tok, err := svc.Create(ctx, &actor.Token{Name: "barrel"})
	require.NoError(t, err)
	w := New(h.queue, svc, h.rdb, logger, Options{ID: "worker-shared", PollTimeout: time.Second, MaxAttempts: 3})
	t.Cleanup(w.Stop)

	t.Run("worker does not wait on its own lock", func(t *testing.T) {
		require.NoError(t, h.queue.Enqueue(ctx, moveTo(tok.ID, 4)))
		require.NoError(t, w.processNext(w.ID()))

		got, err := svc.Get(ctx, tok.ID)
		require.NoError(t, err)
		assert.Equal(t, 4.0, got.X)
		assert.False(t, h.mr.Exists(queue.LockKey(tok.ID)))
	})

	t.Run("queued move waits while an update holds the token", func(t *testing.T) {
		release, err := locks.Lock(ctx, tok.ID)
		require.NoError(t, err)

		require.NoError(t, h.queue.Enqueue(ctx, moveTo(tok.ID, 8)))
		require.NoError(t, w.processNext(w.ID()))

		got, err := svc.Get(ctx, tok.ID)
		require.NoError(t, err)
		assert.Equal(t, 4.0, got.X, "move must not apply under another holder")
		depth, err := h.queue.Depth(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, depth)

		require.NoError(t, release())
		require.NoError(t, w.processNext(w.ID()))
		got, err = svc.Get(ctx, tok.ID)
		require.NoError(t, err)
		assert.Equal(t, 8.0, got.X)
	})
}

func TestWorker_ConcurrentConsumers(t *testing.T) {
	h := setupWorker(t)
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	w := New(h.queue, h.svc, h.rdb, logger, Options{ID: "worker-pool", Concurrency: 3, PollTimeout: time.Second})
	t.Cleanup(w.Stop)
	assert.Equal(t, "worker-pool/0", w.lockOwner(0))
	assert.Equal(t, "worker-pool/2", w.lockOwner(2))

	var ids []uuid.UUID
	for i := range 4 {
		tok, err := h.svc.Create(ctx, &actor.Token{Name: fmt.Sprintf("crate-%d", i)})
		require.NoError(t, err)
		ids = append(ids, tok.ID)
		require.NoError(t, h.queue.Enqueue(ctx, moveTo(tok.ID, float64(i+10))))
	}

	done := make(chan error, 1)
	go func() { done <- w.Start() }()

	assert.Eventually(t, func() bool {
		for i, id := range ids {
			tok, err := h.svc.Get(ctx, id)
			if err != nil || tok.X != float64(i+10) {
				return false
			}
		}
		return true
	}, 3*time.Second, 20*time.Millisecond)

	w.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	for _, id := range ids {
		assert.False(t, h.mr.Exists(queue.LockKey(id)), "lock should be released")
	}
}

func TestNew_Defaults(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	w := New(nil, nil, redis.NewClient(&redis.Options{}), logger, Options{})
	defer w.Stop()

	assert.Regexp(t, `^worker-[0-9a-f]{8}$`, w.ID())
	assert.Equal(t, defaultPollTimeout, w.pollTimeout)
	assert.Equal(t, defaultLockTTL, w.locks.TTL())
	assert.Equal(t, defaultMaxAttempts, w.maxAttempts)
	assert.Equal(t, 1, w.concurrency)
	assert.Equal(t, w.ID(), w.lockOwner(0))
}
