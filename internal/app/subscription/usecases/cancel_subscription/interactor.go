package cancel_subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/contracts"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/metrics"
)

// Interactor handles the cancel subscription use case
type Interactor struct {
	repo    contracts.SubscriptionRepository
	locker  contracts.SubscriptionLocker
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewInteractor creates a new cancel subscription interactor
func NewInteractor(repo contracts.SubscriptionRepository, locker contracts.SubscriptionLocker, lockTTL time.Duration, m *metrics.Metrics, logger *slog.Logger) *Interactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interactor{
		repo:    repo,
		locker:  locker,
		lockTTL: lockTTL,
		metrics: m,
		logger:  logger,
	}
}

// Execute cancels a subscription
func (i *Interactor) Execute(ctx context.Context, subscriptionID string) (*domain.SubscriptionCancelledEvent, error) {
	release, err := i.locker.Acquire(ctx, subscriptionID, i.lockTTL)
	if err != nil {
		i.metrics.IncrementLockContention()
		return nil, fmt.Errorf("lock subscription %s: %w", subscriptionID, err)
	}
	defer release()

	// 1. Load subscription
	sub, err := i.repo.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	// 2. Cancel via domain method (returns event)
	event, err := sub.Cancel()
	if err != nil {
		return nil, err
	}

	// 3. Get mutations for saving updated subscription
	mutations, err := i.repo.Save(ctx, sub)
	if err != nil {
		return nil, err
	}

	// 4. Apply the mutations
	if err := i.repo.Apply(ctx, mutations...); err != nil {
		return nil, err
	}

	i.metrics.IncrementCancellation()
	i.logger.InfoContext(ctx, "subscription cancelled",
		"subscription_id", event.SubscriptionID,
		"previous_state", event.PreviousState)

	return event, nil
}
