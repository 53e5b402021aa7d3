package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned by Lock when the token stays locked past the
// wait limit.
var ErrLockTimeout = errors.New("timed out waiting for token lock")

const defaultLockRetry = 25 * time.Millisecond

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// LockKey is the Redis key guarding a token. The API and the workers both
// take it before changing the token.
func LockKey(tokenID uuid.UUID) string {
	return "token-lock:" + tokenID.String()
}

// TokenLocks hands out per-token Redis locks with a fixed TTL.
type TokenLocks struct {
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
}

func NewTokenLocks(rdb *redis.Client, ttl time.Duration) *TokenLocks {
	return &TokenLocks{rdb: rdb, ttl: ttl, retry: defaultLockRetry}
}

// TTL is how long a lock lives if its owner never releases it.
func (l *TokenLocks) TTL() time.Duration {
	return l.ttl
}

// TryAcquire reports whether owner now holds the token's lock.
func (l *TokenLocks) TryAcquire(ctx context.Context, tokenID uuid.UUID, owner string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, LockKey(tokenID), owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire token lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock if owner still holds it. It runs on its own short
// context so a cancelled caller still releases.
func (l *TokenLocks) Release(tokenID uuid.UUID, owner string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.rdb, []string{LockKey(tokenID)}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release token lock: %w", err)
	}
	return nil
}

// Lock waits for the token's lock and returns its release func. It gives up
// with ErrLockTimeout after one TTL, by which time a crashed holder's lock
// has expired.
func (l *TokenLocks) Lock(ctx context.Context, tokenID uuid.UUID) (func() error, error) {
	owner := "api-" + uuid.NewString()
	deadline := time.Now().Add(l.ttl)

	for {
		ok, err := l.TryAcquire(ctx, tokenID, owner)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() error { return l.Release(tokenID, owner) }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("token %s: %w", tokenID, ErrLockTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
