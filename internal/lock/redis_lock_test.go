package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLock(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestAcquireAndRelease(t *testing.T) {
	client, mr := setupTestLock(t)
	ctx := context.Background()
	l := NewRedisLock(client, "", 0)

	release, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(DefaultKey))
	assert.Equal(t, DefaultTTL, mr.TTL(DefaultKey))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(DefaultKey))
}

func TestAcquireIsExclusive(t *testing.T) {
	client, _ := setupTestLock(t)
	ctx := context.Background()

	first := NewRedisLock(client, "test:lock", time.Second)
	second := NewRedisLock(client, "test:lock", time.Second).WithWait(30*time.Millisecond, 10*time.Millisecond)

	release, err := first.Acquire(ctx)
	require.NoError(t, err)

	_, err = second.Acquire(ctx)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, release(ctx))
	again, err := second.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestReleaseKeepsAnotherHoldersLock(t *testing.T) {
	client, mr := setupTestLock(t)
	ctx := context.Background()
	l := NewRedisLock(client, "test:lock", time.Second)

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	// The first holder's TTL lapsed and someone else took over.
	require.NoError(t, mr.Set("test:lock", "other-holder"))

	require.NoError(t, release(ctx))
	got, err := mr.Get("test:lock")
	require.NoError(t, err)
	assert.Equal(t, "other-holder", got)
}

func TestAcquireHonoursContext(t *testing.T) {
	client, mr := setupTestLock(t)
	require.NoError(t, mr.Set("test:lock", "held"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewRedisLock(client, "test:lock", time.Second).WithWait(time.Second, 10*time.Millisecond)
	_, err := l.Acquire(ctx)
	assert.Error(t, err)
}
