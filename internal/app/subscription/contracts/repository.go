package contracts

import (
	"context"

	"cloud.google.com/go/spanner"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
)

// SubscriptionRepository defines the interface for subscription persistence
type SubscriptionRepository interface {
	// Save returns the mutations that persist the whole aggregate: the
	// subscription row plus its items, steps, transitions and payments.
	Save(ctx context.Context, sub *domain.Subscription) ([]*spanner.Mutation, error)
	FindByID(ctx context.Context, id string) (*domain.Subscription, error)
	Apply(ctx context.Context, mutations ...*spanner.Mutation) error
}
