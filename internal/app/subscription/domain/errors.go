package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors
var (
	ErrInvalidAmount         = errors.New("amount cannot be negative")
	ErrInvalidCurrency       = errors.New("currency must be a 3-letter code")
	ErrInvalidPercentage     = errors.New("percentage must be between 0 and 100")
	ErrInvalidPeriod         = errors.New("start date must be before end date")
	ErrInvalidConfiguration  = errors.New("invalid subscription configuration")
	ErrEmployeeRequiredFirst = errors.New("first subscription item must be the employee")
	ErrDuplicateMember       = errors.New("member is already covered by this subscription")
	ErrChildrenLimitExceeded = errors.New("children limit exceeded")
	ErrStepOutOfOrder        = errors.New("enrollment step completed out of order")
	ErrStepAlreadyCompleted  = errors.New("enrollment step already completed")
	ErrStepNotFound          = errors.New("enrollment step not found")
	ErrInvalidCompanyID      = errors.New("company ID cannot be empty")
	ErrInvalidEmployeeID     = errors.New("employee ID cannot be empty")
	ErrInvalidPlanID         = errors.New("plan ID cannot be empty")
	ErrInvalidMemberID       = errors.New("member ID cannot be empty")
	ErrInvalidMemberType     = errors.New("unknown member type")
)

// State-conflict errors
var (
	ErrInvalidTransition       = errors.New("invalid state transition")
	ErrInvalidStateForStart    = errors.New("enrollment can only be started from draft")
	ErrInvalidStateForActivate = errors.New("subscription cannot be activated in its current state")
	ErrInvalidStateForPayment  = errors.New("payment cannot be processed in the current state")
	ErrInvalidStateForCancel   = errors.New("subscription cannot be cancelled in its current state")
	ErrInvalidStateForExpire   = errors.New("subscription cannot be expired in its current state")
	ErrAlreadyCancelled        = errors.New("subscription already cancelled")
	ErrCannotModifyItems       = errors.New("subscription items can only be modified before enrollment starts")
	ErrInvalidStepStatus       = errors.New("enrollment steps can only be completed while enrollment is pending")
	ErrOutsidePeriod           = errors.New("subscription period is not active")
	ErrStepsIncomplete         = errors.New("all enrollment steps must be completed")
	ErrEmptySubscription       = errors.New("subscription has no items")
)

// Payment-domain and lookup errors
var (
	ErrCurrencyMismatch     = errors.New("currency mismatch")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNoStrategyAvailable  = errors.New("no payment strategy available")
	ErrInvalidAllocation    = errors.New("payment allocation is not valid for this strategy")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrWalletNotFound       = errors.New("employee wallet not found")
)

// InvalidConfigurationError aggregates every violation found while validating a
// subscription configuration.
type InvalidConfigurationError struct {
	Violations []string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidConfiguration, strings.Join(e.Violations, "; "))
}

func (e *InvalidConfigurationError) Unwrap() error {
	return ErrInvalidConfiguration
}
