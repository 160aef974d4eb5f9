package activate_subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/contracts"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/metrics"
)

// Interactor activates subscriptions whose payment went through but whose
// coverage period had not started yet when the last step was completed.
type Interactor struct {
	repo    contracts.SubscriptionRepository
	locker  contracts.SubscriptionLocker
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewInteractor creates a new activate subscription interactor
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

// Execute activates a subscription
func (i *Interactor) Execute(ctx context.Context, subscriptionID string) (*domain.SubscriptionActivatedEvent, error) {
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

	// 2. Activate via domain method
	if err := sub.Activate(); err != nil {
		i.logger.WarnContext(ctx, "activation refused",
			"subscription_id", subscriptionID,
			"state", sub.State(),
			"error", err)
		return nil, err
	}

	// 3. Persist
	mutations, err := i.repo.Save(ctx, sub)
	if err != nil {
		return nil, err
	}
	if err := i.repo.Apply(ctx, mutations...); err != nil {
		return nil, err
	}

	i.metrics.IncrementActivation()
	i.logger.InfoContext(ctx, "subscription activated", "subscription_id", sub.ID())

	return &domain.SubscriptionActivatedEvent{
		SubscriptionID: sub.ID(),
		CompanyID:      sub.CompanyID(),
		EmployeeID:     sub.EmployeeID(),
		ActivatedAt:    sub.UpdatedAt(),
	}, nil
}
