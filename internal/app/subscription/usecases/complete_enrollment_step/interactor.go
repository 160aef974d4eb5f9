package complete_enrollment_step

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/contracts"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/metrics"
)

// Request identifies the step to complete
type Request struct {
	SubscriptionID string
	Step           domain.EnrollmentStepType
}

// Interactor handles the complete enrollment step use case. Completing the
// last step runs the payment and, when coverage has started, activation.
type Interactor struct {
	repo    contracts.SubscriptionRepository
	wallet  contracts.WalletClient
	locker  contracts.SubscriptionLocker
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewInteractor creates a new complete enrollment step interactor
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

// Execute completes one enrollment step. When the payment succeeds but the
// wallet debit fails, the event is returned together with the error; the
// subscription is already persisted as paid at that point.
func (i *Interactor) Execute(ctx context.Context, req Request) (*domain.EnrollmentStepCompletedEvent, error) {
	release, err := i.locker.Acquire(ctx, req.SubscriptionID, i.lockTTL)
	if err != nil {
		i.metrics.IncrementLockContention()
		return nil, fmt.Errorf("lock subscription %s: %w", req.SubscriptionID, err)
	}
	defer release()

	// 1. Load subscription
	sub, err := i.repo.FindByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	log := i.logger.With("subscription_id", sub.ID(), "step", req.Step)

	// 2. Wallet balance, only needed when this step triggers an employee-funded payment
	balance, err := i.balanceFor(ctx, sub, req.Step)
	if err != nil {
		return nil, err
	}

	// 3. Complete the step via domain method
	wasActive := sub.Status() == domain.StatusActive
	wasCompleted := stepCompleted(sub, req.Step)
	payment, stepErr := sub.CompleteEnrollmentStep(ctx, req.Step, balance)
	if stepErr != nil && (wasCompleted || !stepCompleted(sub, req.Step)) {
		return nil, stepErr
	}

	// 4. Persist. A payment fault still leaves a completed step and a
	// PAYMENT_FAILED state behind, and both must be stored.
	mutations, err := i.repo.Save(ctx, sub)
	if err != nil {
		return nil, err
	}
	if err := i.repo.Apply(ctx, mutations...); err != nil {
		return nil, err
	}

	i.metrics.IncrementStepCompleted(string(req.Step))
	if payment != nil {
		i.metrics.IncrementPayment(string(payment.Source), outcome(payment, stepErr))
		log.InfoContext(ctx, "payment attempted",
			"success", payment.Success,
			"source", payment.Source,
			"transaction_id", payment.TransactionID,
			"error_message", payment.ErrorMessage)
	}
	if !wasActive && sub.Status() == domain.StatusActive {
		i.metrics.IncrementActivation()
		log.InfoContext(ctx, "subscription activated")
	}
	if stepErr != nil {
		if payment == nil {
			i.metrics.IncrementPayment(string(sub.AggregatePaymentAllocation().Source()), "error")
		}
		log.ErrorContext(ctx, "payment fault after completing step", "state", sub.State(), "error", stepErr)
		return nil, stepErr
	}

	event := &domain.EnrollmentStepCompletedEvent{
		SubscriptionID: sub.ID(),
		Step:           req.Step,
		State:          sub.State(),
		Payment:        payment,
		CompletedAt:    sub.UpdatedAt(),
	}
	log.InfoContext(ctx, "enrollment step completed", "state", sub.State())

	// 5. Debit the employee share (after successful save)
	if payment != nil && payment.Success && payment.EmployeeCharged.IsPositive() {
		if err := i.wallet.Debit(ctx, sub.EmployeeID(), payment.EmployeeCharged, payment.TransactionID); err != nil {
			log.ErrorContext(ctx, "wallet debit failed",
				"transaction_id", payment.TransactionID,
				"amount", payment.EmployeeCharged.String(),
				"error", err)
			return event, fmt.Errorf("debit wallet for %s: %w", payment.TransactionID, err)
		}
	}

	return event, nil
}

func (i *Interactor) balanceFor(ctx context.Context, sub *domain.Subscription, step domain.EnrollmentStepType) (domain.Money, error) {
	currency := sub.TotalMonthlyAmount().Currency()
	if sub.Status() != domain.StatusPending || stepCompleted(sub, step) || !isFinalStep(sub, step) ||
		!sub.AggregatePaymentAllocation().EmployeeContribution().IsPositive() {
		return domain.ZeroMoney(currency)
	}
	balance, err := i.wallet.GetBalance(ctx, sub.EmployeeID(), currency)
	if err != nil {
		return domain.Money{}, fmt.Errorf("wallet balance for %s: %w", sub.EmployeeID(), err)
	}
	return balance, nil
}

// isFinalStep reports whether step is the only one still pending.
func isFinalStep(sub *domain.Subscription, step domain.EnrollmentStepType) bool {
	for _, s := range sub.EnrollmentSteps() {
		if s.Type != step && !s.IsCompleted() {
			return false
		}
	}
	return true
}

func stepCompleted(sub *domain.Subscription, step domain.EnrollmentStepType) bool {
	for _, s := range sub.EnrollmentSteps() {
		if s.Type == step {
			return s.IsCompleted()
		}
	}
	return false
}

func outcome(payment *domain.PaymentResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case payment.Success:
		return "success"
	default:
		return "failed"
	}
}
