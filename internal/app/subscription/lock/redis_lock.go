package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/contracts"
)

var _ contracts.SubscriptionLocker = (*RedisLock)(nil)

// ErrNotAcquired is returned by TryAcquire when another holder owns the key.
var ErrNotAcquired = errors.New("lock is held by another owner")

const defaultRetryInterval = 50 * time.Millisecond

// releaseScript deletes the key only if it still holds our token, so a holder
// whose TTL ran out can never free a lock that someone else took since.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock serializes work on a key across processes using SET NX PX.
type RedisLock struct {
	client        redis.UniversalClient
	prefix        string
	retryInterval time.Duration
	newToken      func() string
	logger        *slog.Logger
}

type Option func(*RedisLock)

// WithPrefix namespaces every key, e.g. "enrollment:lock:".
func WithPrefix(prefix string) Option {
	return func(l *RedisLock) {
		l.prefix = prefix
	}
}

// WithRetryInterval sets how often a blocked Acquire polls.
func WithRetryInterval(d time.Duration) Option {
	return func(l *RedisLock) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

// WithLogger sets where failed releases are reported.
func WithLogger(logger *slog.Logger) Option {
	return func(l *RedisLock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewRedisLock(client redis.UniversalClient, opts ...Option) *RedisLock {
	l := &RedisLock{
		client:        client,
		retryInterval: defaultRetryInterval,
		newToken:      func() string { return uuid.New().String() },
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until the key is held or ctx is done. The lock expires on
// its own after ttl if release is never called.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		release, err := l.TryAcquire(ctx, key, ttl)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock for %s: %w", key, ctx.Err())
		}
	}
}

// TryAcquire makes a single attempt and returns ErrNotAcquired when the key is taken.
func (l *RedisLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}
	return l.buildRelease(key, token), nil
}

func (l *RedisLock) buildRelease(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be cancelled.
			deleted, err := releaseScript.Run(context.Background(), l.client, []string{l.prefix + key}, token).Int()
			switch {
			case err != nil:
				// The key still expires after its TTL.
				l.logger.Error("lock release failed", "key", l.prefix+key, "error", err)
			case deleted == 0:
				l.logger.Warn("lock expired before release", "key", l.prefix+key)
			}
		})
	}
}
