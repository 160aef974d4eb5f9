package lock

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T, opts ...Option) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	opts = append([]Option{WithRetryInterval(5 * time.Millisecond)}, opts...)
	return NewRedisLock(client, opts...), mr
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	lock, mr := newTestLock(t, WithPrefix("enrollment:lock:"))
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "sub-1", time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("enrollment:lock:sub-1"))

	release()
	assert.False(t, mr.Exists("enrollment:lock:sub-1"))

	release2, err := lock.Acquire(ctx, "sub-1", time.Second)
	require.NoError(t, err)
	release2()
}

func TestRedisLock_TryAcquireHeld(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	release, err := lock.TryAcquire(ctx, "sub-1", time.Second)
	require.NoError(t, err)
	defer release()

	_, err = lock.TryAcquire(ctx, "sub-1", time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := lock.TryAcquire(ctx, "sub-2", time.Second)
	require.NoError(t, err)
	other()
}

func TestRedisLock_AcquireTimesOut(t *testing.T) {
	lock, _ := newTestLock(t)

	release, err := lock.Acquire(context.Background(), "sub-1", time.Minute)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = lock.Acquire(ctx, "sub-1", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLock_AcquireWaitsForRelease(t *testing.T) {
	lock, _ := newTestLock(t)

	release, err := lock.Acquire(context.Background(), "sub-1", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	release2, err := lock.Acquire(ctx, "sub-1", time.Minute)
	require.NoError(t, err)
	release2()
}

func TestRedisLock_ReleaseIdempotent(t *testing.T) {
	lock, _ := newTestLock(t)

	release, err := lock.Acquire(context.Background(), "sub-1", time.Second)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		release()
		release()
	})
}

func TestRedisLock_StaleHolderCannotRelease(t *testing.T) {
	lock, mr := newTestLock(t)
	ctx := context.Background()

	stale, err := lock.TryAcquire(ctx, "sub-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	current, err := lock.TryAcquire(ctx, "sub-1", time.Minute)
	require.NoError(t, err)
	defer current()

	stale()
	assert.True(t, mr.Exists("sub-1"))

	_, err = lock.TryAcquire(ctx, "sub-1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestRedisLock_ReleaseFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	lock := NewRedisLock(client, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	release, err := lock.TryAcquire(context.Background(), "sub-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	release()

	assert.Contains(t, buf.String(), "lock release failed")
	assert.Contains(t, buf.String(), "key=sub-1")
	assert.True(t, mr.Exists("sub-1"), "key is left to expire on its own")
}

func TestRedisLock_ExpiredReleaseIsLogged(t *testing.T) {
	var buf bytes.Buffer
	lock, mr := newTestLock(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	release, err := lock.TryAcquire(context.Background(), "sub-1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	release()

	assert.Contains(t, buf.String(), "lock expired before release")
	assert.NotContains(t, buf.String(), "lock release failed")
}
