package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transaction id prefixes per strategy.
const (
	CompanyTransactionPrefix = "comp_"
	WalletTransactionPrefix  = "wallet_"
	HybridTransactionPrefix  = "hybrid_"
)

// PaymentResult reports the outcome of a payment and the distribution that
// the storage layer is expected to apply and audit. Strategies never touch
// wallet state themselves.
type PaymentResult struct {
	Success         bool
	TransactionID   string
	ErrorMessage    string
	ProcessedAt     time.Time
	Source          AllocationSource
	CompanyCharged  Money
	EmployeeCharged Money
	Metadata        map[string]string
}

// PaymentStrategy executes a payment for allocations of one source.
type PaymentStrategy interface {
	Source() AllocationSource
	CanHandle(allocation PaymentAllocation) bool
	ValidatePayment(allocation PaymentAllocation, walletBalance Money) error
	// ProcessPayment returns a failed result for business-rule failures. The
	// error is reserved for unexpected faults.
	ProcessPayment(ctx context.Context, allocation PaymentAllocation, walletBalance Money, metadata map[string]string) (PaymentResult, error)
}

// TransactionIDGenerator builds a transaction id from a strategy prefix.
type TransactionIDGenerator func(prefix string) string

func defaultTransactionID(prefix string) string {
	return prefix + uuid.New().String()
}

type strategyBase struct {
	clock Clock
	newID TransactionIDGenerator
}

func newStrategyBase(clock Clock, newID TransactionIDGenerator) strategyBase {
	if newID == nil {
		newID = defaultTransactionID
	}
	return strategyBase{clock: clockOrDefault(clock), newID: newID}
}

func (b strategyBase) process(ctx context.Context, s PaymentStrategy, prefix string, allocation PaymentAllocation, walletBalance Money, metadata map[string]string) (PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return PaymentResult{}, err
	}
	result := PaymentResult{
		Source:          s.Source(),
		ProcessedAt:     b.clock.Now(),
		CompanyCharged:  allocation.CompanyContribution(),
		EmployeeCharged: allocation.EmployeeContribution(),
		Metadata:        copyMetadata(metadata),
	}
	if err := s.ValidatePayment(allocation, walletBalance); err != nil {
		result.ErrorMessage = failureMessage(err)
		return result, nil
	}
	result.Success = true
	result.TransactionID = b.newID(prefix)
	return result, nil
}

// CompanyPaymentStrategy charges allocations fully covered by the company.
type CompanyPaymentStrategy struct {
	strategyBase
}

func NewCompanyPaymentStrategy(clock Clock, newID TransactionIDGenerator) *CompanyPaymentStrategy {
	return &CompanyPaymentStrategy{strategyBase: newStrategyBase(clock, newID)}
}

func (*CompanyPaymentStrategy) Source() AllocationSource {
	return SourceCompany
}

func (*CompanyPaymentStrategy) CanHandle(a PaymentAllocation) bool {
	return a.Source() == SourceCompany && a.EmployeeContribution().IsZero()
}

func (s *CompanyPaymentStrategy) ValidatePayment(a PaymentAllocation, _ Money) error {
	if !s.CanHandle(a) {
		return fmt.Errorf("%w: company payment requires a company-only allocation, got %s", ErrInvalidAllocation, a.Source())
	}
	if a.IsZero() {
		return fmt.Errorf("%w: allocation has no amount", ErrInvalidAllocation)
	}
	return nil
}

func (s *CompanyPaymentStrategy) ProcessPayment(ctx context.Context, a PaymentAllocation, wallet Money, metadata map[string]string) (PaymentResult, error) {
	return s.process(ctx, s, CompanyTransactionPrefix, a, wallet, metadata)
}

// EmployeeWalletPaymentStrategy charges allocations paid entirely from the wallet.
type EmployeeWalletPaymentStrategy struct {
	strategyBase
}

func NewEmployeeWalletPaymentStrategy(clock Clock, newID TransactionIDGenerator) *EmployeeWalletPaymentStrategy {
	return &EmployeeWalletPaymentStrategy{strategyBase: newStrategyBase(clock, newID)}
}

func (*EmployeeWalletPaymentStrategy) Source() AllocationSource {
	return SourceEmployeeWallet
}

func (*EmployeeWalletPaymentStrategy) CanHandle(a PaymentAllocation) bool {
	return a.Source() == SourceEmployeeWallet && a.CompanyContribution().IsZero()
}

func (s *EmployeeWalletPaymentStrategy) ValidatePayment(a PaymentAllocation, wallet Money) error {
	if !s.CanHandle(a) {
		return fmt.Errorf("%w: wallet payment requires an employee-only allocation, got %s", ErrInvalidAllocation, a.Source())
	}
	return checkWallet(a, wallet)
}

func (s *EmployeeWalletPaymentStrategy) ProcessPayment(ctx context.Context, a PaymentAllocation, wallet Money, metadata map[string]string) (PaymentResult, error) {
	return s.process(ctx, s, WalletTransactionPrefix, a, wallet, metadata)
}

// HybridPaymentStrategy charges both the company and the wallet.
type HybridPaymentStrategy struct {
	strategyBase
}

func NewHybridPaymentStrategy(clock Clock, newID TransactionIDGenerator) *HybridPaymentStrategy {
	return &HybridPaymentStrategy{strategyBase: newStrategyBase(clock, newID)}
}

func (*HybridPaymentStrategy) Source() AllocationSource {
	return SourceHybrid
}

func (*HybridPaymentStrategy) CanHandle(a PaymentAllocation) bool {
	return a.Source() == SourceHybrid &&
		a.CompanyContribution().IsPositive() &&
		a.EmployeeContribution().IsPositive()
}

func (s *HybridPaymentStrategy) ValidatePayment(a PaymentAllocation, wallet Money) error {
	if !s.CanHandle(a) {
		return fmt.Errorf("%w: hybrid payment requires both contributions, got %s", ErrInvalidAllocation, a.Source())
	}
	return checkWallet(a, wallet)
}

func (s *HybridPaymentStrategy) ProcessPayment(ctx context.Context, a PaymentAllocation, wallet Money, metadata map[string]string) (PaymentResult, error) {
	return s.process(ctx, s, HybridTransactionPrefix, a, wallet, metadata)
}

func checkWallet(a PaymentAllocation, wallet Money) error {
	required := a.EmployeeContribution()
	ok, err := wallet.IsGreaterThanOrEqualTo(required)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: wallet balance %s, required %s", ErrInsufficientFunds, wallet, required)
	}
	return nil
}

// failureMessage renders a validation error for PaymentResult.ErrorMessage.
func failureMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, ErrInsufficientFunds) {
		return "Insufficient funds" + strings.TrimPrefix(msg, ErrInsufficientFunds.Error())
	}
	return msg
}

func copyMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
