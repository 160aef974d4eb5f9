package domain

import (
	"context"
	"fmt"
)

// PaymentExecutor is what the coordinator needs from a processor.
type PaymentExecutor interface {
	ProcessPayment(ctx context.Context, allocation PaymentAllocation, walletBalance Money, metadata map[string]string) (PaymentResult, error)
	ValidatePayment(allocation PaymentAllocation, walletBalance Money) error
}

var _ PaymentExecutor = (*PaymentProcessor)(nil)

// PaymentProcessor selects the strategy for an allocation and delegates to it.
type PaymentProcessor struct {
	clock      Clock
	ordered    []PaymentStrategy
	strategies map[AllocationSource]PaymentStrategy
}

// PaymentProcessorOption configures a PaymentProcessor.
type PaymentProcessorOption func(*processorConfig)

type processorConfig struct {
	newID      TransactionIDGenerator
	strategies []PaymentStrategy
}

func WithTransactionIDGenerator(gen TransactionIDGenerator) PaymentProcessorOption {
	return func(c *processorConfig) {
		c.newID = gen
	}
}

// WithStrategies replaces the default company/wallet/hybrid set.
func WithStrategies(strategies ...PaymentStrategy) PaymentProcessorOption {
	return func(c *processorConfig) {
		c.strategies = strategies
	}
}

func NewPaymentProcessor(clock Clock, opts ...PaymentProcessorOption) *PaymentProcessor {
	clock = clockOrDefault(clock)
	cfg := processorConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.strategies == nil {
		cfg.strategies = []PaymentStrategy{
			NewCompanyPaymentStrategy(clock, cfg.newID),
			NewEmployeeWalletPaymentStrategy(clock, cfg.newID),
			NewHybridPaymentStrategy(clock, cfg.newID),
		}
	}

	p := &PaymentProcessor{
		clock:      clock,
		ordered:    cfg.strategies,
		strategies: make(map[AllocationSource]PaymentStrategy, len(cfg.strategies)),
	}
	for _, s := range cfg.strategies {
		if _, exists := p.strategies[s.Source()]; !exists {
			p.strategies[s.Source()] = s
		}
	}
	return p
}

// StrategyFor returns the first strategy able to handle allocation. The
// source-indexed entry is tried first; the ordered list is the fallback.
func (p *PaymentProcessor) StrategyFor(allocation PaymentAllocation) (PaymentStrategy, bool) {
	if s, ok := p.strategies[allocation.Source()]; ok && s.CanHandle(allocation) {
		return s, true
	}
	for _, s := range p.ordered {
		if s.CanHandle(allocation) {
			return s, true
		}
	}
	return nil, false
}

// ProcessPayment never returns an error for a missing strategy; that case is
// reported as a failed result.
func (p *PaymentProcessor) ProcessPayment(ctx context.Context, allocation PaymentAllocation, walletBalance Money, metadata map[string]string) (PaymentResult, error) {
	s, ok := p.StrategyFor(allocation)
	if !ok {
		return PaymentResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("%s for source %s", ErrNoStrategyAvailable, allocation.Source()),
			ProcessedAt:  p.clock.Now(),
			Source:       allocation.Source(),
			Metadata:     copyMetadata(metadata),
		}, nil
	}
	return s.ProcessPayment(ctx, allocation, walletBalance, metadata)
}

func (p *PaymentProcessor) ValidatePayment(allocation PaymentAllocation, walletBalance Money) error {
	s, ok := p.StrategyFor(allocation)
	if !ok {
		return fmt.Errorf("%w for source %s", ErrNoStrategyAvailable, allocation.Source())
	}
	return s.ValidatePayment(allocation, walletBalance)
}
