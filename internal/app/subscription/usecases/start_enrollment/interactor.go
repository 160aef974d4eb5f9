package start_enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/contracts"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/metrics"
)

// Interactor handles the start enrollment use case
type Interactor struct {
	repo    contracts.SubscriptionRepository
	locker  contracts.SubscriptionLocker
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewInteractor creates a new start enrollment interactor
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

// Execute moves a DRAFT subscription into enrollment
func (i *Interactor) Execute(ctx context.Context, subscriptionID string) (*domain.EnrollmentStartedEvent, error) {
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

	// 2. Start enrollment via domain method
	if err := sub.StartEnrollment(); err != nil {
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

	i.metrics.IncrementEnrollmentStarted()
	i.logger.InfoContext(ctx, "enrollment started",
		"subscription_id", sub.ID(),
		"state", sub.State(),
		"items", len(sub.Items()))

	return &domain.EnrollmentStartedEvent{
		SubscriptionID: sub.ID(),
		CompanyID:      sub.CompanyID(),
		EmployeeID:     sub.EmployeeID(),
		ItemCount:      len(sub.Items()),
		StartedAt:      sub.UpdatedAt(),
	}, nil
}
