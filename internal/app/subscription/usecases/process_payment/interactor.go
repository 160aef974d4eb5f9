package process_payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/contracts"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/metrics"
)

// Response reports the payment attempt and whether it also activated coverage
type Response struct {
	Payment   domain.PaymentResult
	Activated bool
}

// Interactor retries the payment of a subscription whose previous attempt
// failed, typically after the employee topped up their wallet.
type Interactor struct {
	repo    contracts.SubscriptionRepository
	wallet  contracts.WalletClient
	locker  contracts.SubscriptionLocker
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewInteractor creates a new process payment interactor
func NewInteractor(repo contracts.SubscriptionRepository, wallet contracts.WalletClient, locker contracts.SubscriptionLocker, lockTTL time.Duration, m *metrics.Metrics, logger *slog.Logger) *Interactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interactor{
		repo:    repo,
		wallet:  wallet,
		locker:  locker,
		lockTTL: lockTTL,
		metrics: m,
		logger:  logger,
	}
}

// Execute runs the payment once every enrollment step is completed. A
// successful payment also activates the subscription when coverage has started.
func (i *Interactor) Execute(ctx context.Context, subscriptionID string) (*Response, error) {
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
	log := i.logger.With("subscription_id", sub.ID())

	// 2. Only an enrolled subscription with every step done may be charged
	if sub.Status() != domain.StatusPending {
		return nil, fmt.Errorf("%w: status is %s", domain.ErrInvalidStateForPayment, sub.Status())
	}
	if step, pending := (domain.EnrollmentStepManager{}).NextPendingStep(sub.EnrollmentSteps()); pending {
		return nil, fmt.Errorf("%w: %s is still pending", domain.ErrStepsIncomplete, step.Type)
	}

	// 3. Wallet balance
	currency := sub.TotalMonthlyAmount().Currency()
	balance, err := domain.ZeroMoney(currency)
	if err != nil {
		return nil, err
	}
	if sub.AggregatePaymentAllocation().EmployeeContribution().IsPositive() {
		if balance, err = i.wallet.GetBalance(ctx, sub.EmployeeID(), currency); err != nil {
			return nil, fmt.Errorf("wallet balance for %s: %w", sub.EmployeeID(), err)
		}
	}

	// 4. Pay via domain method
	before := sub.State()
	payment, payErr := sub.ProcessPayment(ctx, balance)
	if payErr != nil && sub.State() == before {
		return nil, payErr
	}

	resp := &Response{Payment: payment}
	if payErr == nil && payment.Success {
		switch err := sub.Activate(); {
		case err == nil:
			resp.Activated = true
		case errors.Is(err, domain.ErrOutsidePeriod):
			log.InfoContext(ctx, "payment processed, activation deferred", "reason", err)
		default:
			return nil, err
		}
	}

	// 5. Persist
	mutations, err := i.repo.Save(ctx, sub)
	if err != nil {
		return nil, err
	}
	if err := i.repo.Apply(ctx, mutations...); err != nil {
		return nil, err
	}

	if payErr != nil {
		i.metrics.IncrementPayment(string(sub.AggregatePaymentAllocation().Source()), "error")
		log.ErrorContext(ctx, "payment fault", "state", sub.State(), "error", payErr)
		return nil, payErr
	}

	outcome := "failed"
	if payment.Success {
		outcome = "success"
	}
	i.metrics.IncrementPayment(string(payment.Source), outcome)
	log.InfoContext(ctx, "payment attempted",
		"success", payment.Success,
		"source", payment.Source,
		"transaction_id", payment.TransactionID,
		"error_message", payment.ErrorMessage,
		"state", sub.State())
	if resp.Activated {
		i.metrics.IncrementActivation()
		log.InfoContext(ctx, "subscription activated")
	}

	// 6. Debit the employee share (after successful save)
	if payment.Success && payment.EmployeeCharged.IsPositive() {
		if err := i.wallet.Debit(ctx, sub.EmployeeID(), payment.EmployeeCharged, payment.TransactionID); err != nil {
			log.ErrorContext(ctx, "wallet debit failed",
				"transaction_id", payment.TransactionID,
				"amount", payment.EmployeeCharged.String(),
				"error", err)
			return resp, fmt.Errorf("debit wallet for %s: %w", payment.TransactionID, err)
		}
	}

	return resp, nil
}
