package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	StatusDraft     SubscriptionStatus = "DRAFT"
	StatusPending   SubscriptionStatus = "PENDING"
	StatusActive    SubscriptionStatus = "ACTIVE"
	StatusCancelled SubscriptionStatus = "CANCELLED"
	StatusExpired   SubscriptionStatus = "EXPIRED"
)

// DefaultCurrency is used for the zero totals of a subscription with no items.
const DefaultCurrency = "USD"

// Subscription is the aggregate root for benefits enrollment. It owns its
// items, enrollment steps and state machine; nothing else mutates them.
// A Subscription is not safe for concurrent use.
type Subscription struct {
	id         string
	companyID  string
	employeeID string
	planID     string
	period     SubscriptionPeriod
	status     SubscriptionStatus
	currency   string

	items               []SubscriptionItem
	steps               []EnrollmentStep
	totalMonthlyAmount  Money
	aggregateAllocation PaymentAllocation
	payments            []PaymentResult

	createdAt time.Time
	updatedAt time.Time

	stateMachine *EnrollmentStateMachine
	coordinator  *SubscriptionPaymentCoordinator
	validator    SubscriptionValidationService
	stepManager  EnrollmentStepManager
	clock        Clock
	newItemID    func() string
}

// SubscriptionOption configures a Subscription at construction or reconstruction.
type SubscriptionOption func(*Subscription)

func WithCurrency(currency string) SubscriptionOption {
	return func(s *Subscription) {
		s.currency = currency
	}
}

func WithPaymentCoordinator(coordinator *SubscriptionPaymentCoordinator) SubscriptionOption {
	return func(s *Subscription) {
		s.coordinator = coordinator
	}
}

func WithItemIDGenerator(gen func() string) SubscriptionOption {
	return func(s *Subscription) {
		s.newItemID = gen
	}
}

func newSubscription(clock Clock, opts []SubscriptionOption) (*Subscription, error) {
	clock = clockOrDefault(clock)
	s := &Subscription{
		currency:    DefaultCurrency,
		validator:   SubscriptionValidationService{},
		stepManager: NewEnrollmentStepManager(clock),
		clock:       clock,
		newItemID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.coordinator == nil {
		s.coordinator = NewSubscriptionPaymentCoordinator(NewPaymentProcessor(clock))
	}
	code, err := normalizeCurrency(s.currency)
	if err != nil {
		return nil, err
	}
	s.currency = code
	return s, nil
}

// NewSubscription creates a DRAFT subscription with no items and three pending steps.
func NewSubscription(id, companyID, employeeID, planID string, period SubscriptionPeriod, clock Clock, opts ...SubscriptionOption) (*Subscription, *SubscriptionCreatedEvent, error) {
	if companyID == "" {
		return nil, nil, ErrInvalidCompanyID
	}
	if employeeID == "" {
		return nil, nil, ErrInvalidEmployeeID
	}
	if planID == "" {
		return nil, nil, ErrInvalidPlanID
	}
	if period.IsZero() {
		return nil, nil, ErrInvalidPeriod
	}

	s, err := newSubscription(clock, opts)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	s.id = id
	s.companyID = companyID
	s.employeeID = employeeID
	s.planID = planID
	s.period = period
	s.status = StatusDraft
	s.steps = s.stepManager.InitializeSteps()
	s.stateMachine = NewEnrollmentStateMachine(s.clock)
	s.createdAt = now
	s.updatedAt = now
	s.totalMonthlyAmount, s.aggregateAllocation = s.zeroTotals()

	event := &SubscriptionCreatedEvent{
		SubscriptionID: id,
		CompanyID:      companyID,
		EmployeeID:     employeeID,
		PlanID:         planID,
		PeriodStart:    period.Start(),
		PeriodEnd:      period.End(),
		CreatedAt:      now,
	}

	return s, event, nil
}

// AddSubscriptionItem covers a new member. Validation runs in a fixed order
// and nothing changes unless every check passes.
func (s *Subscription) AddSubscriptionItem(memberType MemberType, memberID string, monthlyPrice Money, allocation PaymentAllocation) (SubscriptionItem, error) {
	if err := s.validator.ValidateCanModifyItems(s.status); err != nil {
		return SubscriptionItem{}, err
	}
	if !memberType.IsValid() {
		return SubscriptionItem{}, fmt.Errorf("%w: %q", ErrInvalidMemberType, memberType)
	}
	if memberID == "" {
		return SubscriptionItem{}, ErrInvalidMemberID
	}
	if err := s.validator.ValidateEmployeeFirst(s.items, memberType); err != nil {
		return SubscriptionItem{}, err
	}
	if err := s.validator.ValidateNoDuplicateMember(s.items, memberID); err != nil {
		return SubscriptionItem{}, err
	}
	if err := s.validator.ValidateChildrenLimit(s.items, memberType); err != nil {
		return SubscriptionItem{}, err
	}
	if monthlyPrice.Currency() != allocation.Currency() {
		return SubscriptionItem{}, fmt.Errorf("%w: price in %s, allocation in %s",
			ErrCurrencyMismatch, monthlyPrice.Currency(), allocation.Currency())
	}

	now := s.clock.Now()
	item := SubscriptionItem{
		id:                s.newItemID(),
		subscriptionID:    s.id,
		memberType:        memberType,
		memberID:          memberID,
		monthlyPrice:      monthlyPrice,
		paymentAllocation: allocation,
		createdAt:         now,
	}

	candidate := append(s.Items(), item)
	total, aggregate, err := s.calculateTotals(candidate)
	if err != nil {
		return SubscriptionItem{}, err
	}

	s.items = candidate
	s.totalMonthlyAmount = total
	s.aggregateAllocation = aggregate
	s.updatedAt = now
	return item, nil
}

// StartEnrollment moves a DRAFT subscription with at least one item to PENDING.
func (s *Subscription) StartEnrollment() error {
	if len(s.items) == 0 {
		return ErrEmptySubscription
	}
	if s.status != StatusDraft {
		return fmt.Errorf("%w: status is %s", ErrInvalidStateForStart, s.status)
	}
	if err := s.stateMachine.Transition(EventStartEnrollment); err != nil {
		return err
	}
	s.status = StatusPending
	s.updatedAt = s.clock.Now()
	return nil
}

// CompleteEnrollmentStep marks stepType completed. Completing the last step
// runs the payment and then activates the subscription, each hop attempted
// only while the state machine allows it. The returned result is nil when no
// payment was attempted.
func (s *Subscription) CompleteEnrollmentStep(ctx context.Context, stepType EnrollmentStepType, walletBalance Money) (*PaymentResult, error) {
	if err := s.validator.ValidateCanCompleteSteps(s.status); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateStepCompletion(s.steps, stepType); err != nil {
		return nil, err
	}

	s.steps = s.stepManager.CompleteStep(s.steps, stepType)
	s.updatedAt = s.clock.Now()

	if !s.stepManager.AreAllStepsCompleted(s.steps) {
		return nil, nil
	}
	return s.advanceAfterFinalStep(ctx, walletBalance)
}

func (s *Subscription) advanceAfterFinalStep(ctx context.Context, walletBalance Money) (*PaymentResult, error) {
	var result *PaymentResult
	if s.coordinator.CanProcess(s.stateMachine) {
		r, err := s.ProcessPayment(ctx, walletBalance)
		if err != nil {
			return nil, err
		}
		result = &r
	}
	// Coverage that has not started yet stays PAYMENT_PROCESSED until Activate.
	if s.stateMachine.CanTransition(EventActivate) && s.period.IsActive(s.clock.Now()) {
		if err := s.commitActivation(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// ProcessPayment charges the aggregate allocation. Every result, failed or
// not, is kept in the payment audit trail.
func (s *Subscription) ProcessPayment(ctx context.Context, walletBalance Money) (PaymentResult, error) {
	metadata := map[string]string{
		"subscription_id": s.id,
		"company_id":      s.companyID,
		"employee_id":     s.employeeID,
		"plan_id":         s.planID,
	}
	result, err := s.coordinator.ProcessPayment(ctx, s.stateMachine, s.aggregateAllocation, walletBalance, metadata)
	if !result.ProcessedAt.IsZero() {
		s.payments = append(s.payments, result)
		s.updatedAt = s.clock.Now()
	}
	return result, err
}

func (s *Subscription) ValidatePayment(walletBalance Money) error {
	return s.coordinator.ValidatePayment(s.aggregateAllocation, walletBalance)
}

// Activate moves a paid subscription with all steps completed to ACTIVE.
func (s *Subscription) Activate() error {
	if !s.period.IsActive(s.clock.Now()) {
		return ErrOutsidePeriod
	}
	if !s.stateMachine.CanTransition(EventActivate) {
		return fmt.Errorf("%w: state is %s", ErrInvalidStateForActivate, s.stateMachine.CurrentState())
	}
	if !s.stepManager.AreAllStepsCompleted(s.steps) {
		return ErrStepsIncomplete
	}
	return s.commitActivation()
}

func (s *Subscription) commitActivation() error {
	if err := s.stateMachine.Transition(EventActivate); err != nil {
		return err
	}
	s.status = StatusActive
	s.updatedAt = s.clock.Now()
	return nil
}

// Cancel ends the subscription from any non-terminal state.
func (s *Subscription) Cancel() (*SubscriptionCancelledEvent, error) {
	if s.status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	previous := s.stateMachine.CurrentState()
	if !s.stateMachine.CanTransition(EventCancel) {
		return nil, fmt.Errorf("%w: state is %s", ErrInvalidStateForCancel, previous)
	}
	if err := s.stateMachine.Transition(EventCancel); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	s.status = StatusCancelled
	s.updatedAt = now

	return &SubscriptionCancelledEvent{
		SubscriptionID: s.id,
		CompanyID:      s.companyID,
		EmployeeID:     s.employeeID,
		PreviousState:  previous,
		CancelledAt:    now,
	}, nil
}

// Expire ends an ACTIVE subscription whose coverage is over.
func (s *Subscription) Expire() error {
	if !s.stateMachine.CanTransition(EventExpire) {
		return fmt.Errorf("%w: state is %s", ErrInvalidStateForExpire, s.stateMachine.CurrentState())
	}
	if err := s.stateMachine.Transition(EventExpire); err != nil {
		return err
	}
	s.status = StatusExpired
	s.updatedAt = s.clock.Now()
	return nil
}

func (s *Subscription) zeroTotals() (Money, PaymentAllocation) {
	zero, _ := ZeroMoney(s.currency)
	return zero, CompanyPaid(zero)
}

// calculateTotals sums item prices and folds item allocations, both in the
// currency of the first item.
func (s *Subscription) calculateTotals(items []SubscriptionItem) (Money, PaymentAllocation, error) {
	if len(items) == 0 {
		total, allocation := s.zeroTotals()
		return total, allocation, nil
	}

	currency := items[0].monthlyPrice.Currency()
	total, err := ZeroMoney(currency)
	if err != nil {
		return Money{}, PaymentAllocation{}, err
	}
	aggregate := CompanyPaid(total)
	for _, item := range items {
		if total, err = total.Add(item.monthlyPrice); err != nil {
			return Money{}, PaymentAllocation{}, err
		}
		if aggregate, err = aggregate.Combine(item.paymentAllocation); err != nil {
			return Money{}, PaymentAllocation{}, err
		}
	}
	return total, aggregate, nil
}

// Getters (no setters!)
func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) CompanyID() string {
	return s.companyID
}

func (s *Subscription) EmployeeID() string {
	return s.employeeID
}

func (s *Subscription) PlanID() string {
	return s.planID
}

func (s *Subscription) Period() SubscriptionPeriod {
	return s.period
}

func (s *Subscription) Status() SubscriptionStatus {
	return s.status
}

func (s *Subscription) State() EnrollmentState {
	return s.stateMachine.CurrentState()
}

func (s *Subscription) CanTransition(event EnrollmentEvent) bool {
	return s.stateMachine.CanTransition(event)
}

func (s *Subscription) StateHistory() []TransitionRecord {
	return s.stateMachine.History()
}

// Items returns a copy; changes to it never reach the aggregate.
func (s *Subscription) Items() []SubscriptionItem {
	return append([]SubscriptionItem(nil), s.items...)
}

// EnrollmentSteps returns a copy; changes to it never reach the aggregate.
func (s *Subscription) EnrollmentSteps() []EnrollmentStep {
	return cloneSteps(s.steps)
}

func (s *Subscription) Payments() []PaymentResult {
	out := make([]PaymentResult, len(s.payments))
	for i, p := range s.payments {
		p.Metadata = copyMetadata(p.Metadata)
		out[i] = p
	}
	return out
}

func (s *Subscription) TotalMonthlyAmount() Money {
	return s.totalMonthlyAmount
}

func (s *Subscription) AggregatePaymentAllocation() PaymentAllocation {
	return s.aggregateAllocation
}

func (s *Subscription) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Subscription) UpdatedAt() time.Time {
	return s.updatedAt
}
