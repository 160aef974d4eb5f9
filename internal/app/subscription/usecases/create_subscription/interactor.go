package create_subscription

import (
	"context"
	"log/slog"

	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/contracts"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
)

// Request contains the input for creating a subscription. When Template is
// set the members are derived from it and Family; Config.Members is ignored.
type Request struct {
	Config   domain.SubscriptionConfig
	Template *domain.PlanTemplate
	Family   domain.FamilyComposition
}

// Interactor handles the create subscription use case
type Interactor struct {
	repo    contracts.SubscriptionRepository
	factory *domain.HealthcareSubscriptionFactory
	logger  *slog.Logger
}

// NewInteractor creates a new create subscription interactor
func NewInteractor(repo contracts.SubscriptionRepository, factory *domain.HealthcareSubscriptionFactory, logger *slog.Logger) *Interactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interactor{
		repo:    repo,
		factory: factory,
		logger:  logger,
	}
}

// Execute creates a new subscription in DRAFT
func (i *Interactor) Execute(ctx context.Context, req Request) (*domain.Subscription, *domain.SubscriptionCreatedEvent, error) {
	// 1. Build and validate the aggregate
	var (
		sub   *domain.Subscription
		event *domain.SubscriptionCreatedEvent
		err   error
	)
	if req.Template != nil {
		sub, event, err = i.factory.CreateFromTemplate(req.Config, *req.Template, req.Family)
	} else {
		sub, event, err = i.factory.CreateSubscription(req.Config)
	}
	if err != nil {
		i.logger.WarnContext(ctx, "subscription rejected",
			"company_id", req.Config.CompanyID,
			"employee_id", req.Config.EmployeeID,
			"error", err)
		return nil, nil, err
	}

	// 2. Get mutations for saving the subscription
	mutations, err := i.repo.Save(ctx, sub)
	if err != nil {
		return nil, nil, err
	}

	// 3. Apply the mutations
	if err := i.repo.Apply(ctx, mutations...); err != nil {
		return nil, nil, err
	}

	i.logger.InfoContext(ctx, "subscription created",
		"subscription_id", sub.ID(),
		"company_id", sub.CompanyID(),
		"employee_id", sub.EmployeeID(),
		"items", len(sub.Items()),
		"monthly_total", sub.TotalMonthlyAmount().String())

	return sub, event, nil
}
