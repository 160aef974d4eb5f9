package domain

import (
	"context"
	"errors"
	"fmt"
)

// SubscriptionPaymentCoordinator ties payment execution to the enrollment
// state machine: PROCESS_PAYMENT before running the processor, then either
// PAYMENT_SUCCESS or PAYMENT_FAILED.
type SubscriptionPaymentCoordinator struct {
	processor PaymentExecutor
}

func NewSubscriptionPaymentCoordinator(processor PaymentExecutor) *SubscriptionPaymentCoordinator {
	return &SubscriptionPaymentCoordinator{processor: processor}
}

// CanProcess reports whether machine currently permits a payment.
func (c *SubscriptionPaymentCoordinator) CanProcess(machine *EnrollmentStateMachine) bool {
	return machine.CanTransition(EventProcessPayment)
}

// ProcessPayment runs the payment. A failed result moves the machine back to
// ENROLLMENT_STARTED so the payment can be retried. Unexpected faults, panics
// included, are recorded as PAYMENT_FAILED before being passed on.
func (c *SubscriptionPaymentCoordinator) ProcessPayment(ctx context.Context, machine *EnrollmentStateMachine, allocation PaymentAllocation, walletBalance Money, metadata map[string]string) (result PaymentResult, err error) {
	if !c.CanProcess(machine) {
		return PaymentResult{}, fmt.Errorf("%w: state is %s", ErrInvalidStateForPayment, machine.CurrentState())
	}
	if err := machine.Transition(EventProcessPayment); err != nil {
		return PaymentResult{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = machine.Transition(EventPaymentFailed)
			panic(r)
		}
	}()

	result, err = c.processor.ProcessPayment(ctx, allocation, walletBalance, metadata)
	if err != nil {
		if tErr := machine.Transition(EventPaymentFailed); tErr != nil {
			return result, errors.Join(fmt.Errorf("payment processing failed: %w", err), tErr)
		}
		return result, fmt.Errorf("payment processing failed: %w", err)
	}

	next := EventPaymentFailed
	if result.Success {
		next = EventPaymentSuccess
	}
	if err := machine.Transition(next); err != nil {
		return result, err
	}
	return result, nil
}

func (c *SubscriptionPaymentCoordinator) ValidatePayment(allocation PaymentAllocation, walletBalance Money) error {
	return c.processor.ValidatePayment(allocation, walletBalance)
}
