package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"

	"dapurku/backend/internal/store"
)

// Locker serializes mutations of one document across server instances.
// The repository transaction stays the source of truth; the lock only keeps
// concurrent confirmations from racing into serialization failures.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

func DocumentKey(kind string, id int64) string {
	return fmt.Sprintf("lock:%s:%d", kind, id)
}

type Noop struct{}

func (Noop) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(client), ttl: ttl}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	held, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 10),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%w: %s is being modified", store.ErrConflict, key)
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = held.Release(context.WithoutCancel(ctx))
	}()

	return fn(ctx)
}
