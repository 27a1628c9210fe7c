// Package lock serializes reorders across API instances sharing a Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	DefaultKey   = "shiptivity:lock:reorder"
	DefaultTTL   = 10 * time.Second
	DefaultWait  = 5 * time.Second
	DefaultRetry = 50 * time.Millisecond
)

// RedisLock is a single named SET NX PX lock. The TTL bounds how long a
// crashed holder can block other instances.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLock{
		client: client,
		key:    key,
		ttl:    ttl,
		wait:   DefaultWait,
		retry:  DefaultRetry,
	}
}

// WithWait changes how long Acquire keeps retrying and how often.
func (l *RedisLock) WithWait(wait, retry time.Duration) *RedisLock {
	if wait > 0 {
		l.wait = wait
	}
	if retry > 0 {
		l.retry = retry
	}
	return l
}

// Acquire blocks until the lock is held, the wait elapses (ErrNotAcquired) or
// ctx is done. The returned func releases the lock if this holder still owns
// it.
func (l *RedisLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", l.key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				return l.release(ctx, token)
			}, nil
		}
		if !time.Now().Add(l.retry).Before(deadline) {
			return nil, ErrNotAcquired
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLock) release(ctx context.Context, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
