package contracts

import (
	"context"
	"time"
)

// SubscriptionLocker serializes use cases that load, mutate and save the same
// subscription. The returned release func is safe to call more than once.
type SubscriptionLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
