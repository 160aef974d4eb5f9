package domain

import (
	"fmt"
	"time"
)

// SubscriptionSnapshot is the full persisted state of a subscription. Totals
// are not part of it; they are derived from the items on reconstruction.
type SubscriptionSnapshot struct {
	ID         string
	CompanyID  string
	EmployeeID string
	PlanID     string
	Currency   string

	PeriodStart time.Time
	PeriodEnd   time.Time

	Status SubscriptionStatus
	State  EnrollmentState

	Items    []SubscriptionItemSnapshot
	Steps    []EnrollmentStep
	History  []TransitionRecord
	Payments []PaymentResult

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot captures the aggregate for persistence.
func (s *Subscription) Snapshot() SubscriptionSnapshot {
	items := make([]SubscriptionItemSnapshot, len(s.items))
	for i, item := range s.items {
		items[i] = item.Snapshot()
	}
	return SubscriptionSnapshot{
		ID:          s.id,
		CompanyID:   s.companyID,
		EmployeeID:  s.employeeID,
		PlanID:      s.planID,
		Currency:    s.currency,
		PeriodStart: s.period.Start(),
		PeriodEnd:   s.period.End(),
		Status:      s.status,
		State:       s.stateMachine.CurrentState(),
		Items:       items,
		Steps:       s.EnrollmentSteps(),
		History:     s.stateMachine.History(),
		Payments:    s.Payments(),
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}

// ReconstructFromPersistence recreates a subscription from a snapshot.
func ReconstructFromPersistence(snap SubscriptionSnapshot, clock Clock, opts ...SubscriptionOption) (*Subscription, error) {
	period, err := NewSubscriptionPeriod(snap.PeriodStart, snap.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("reconstruct subscription %s: %w", snap.ID, err)
	}

	if snap.Currency != "" {
		opts = append([]SubscriptionOption{WithCurrency(snap.Currency)}, opts...)
	}
	s, err := newSubscription(clock, opts)
	if err != nil {
		return nil, fmt.Errorf("reconstruct subscription %s: %w", snap.ID, err)
	}

	s.id = snap.ID
	s.companyID = snap.CompanyID
	s.employeeID = snap.EmployeeID
	s.planID = snap.PlanID
	s.period = period
	s.status = snap.Status
	s.createdAt = snap.CreatedAt
	s.updatedAt = snap.UpdatedAt

	state := snap.State
	if state == "" {
		state = StateDraft
	}
	s.stateMachine = RestoreEnrollmentStateMachine(state, snap.History, s.clock)

	s.items = make([]SubscriptionItem, len(snap.Items))
	for i, item := range snap.Items {
		s.items[i] = itemFromSnapshot(item)
	}
	if s.totalMonthlyAmount, s.aggregateAllocation, err = s.calculateTotals(s.items); err != nil {
		return nil, fmt.Errorf("reconstruct subscription %s: %w", snap.ID, err)
	}

	if len(snap.Steps) == 0 {
		s.steps = s.stepManager.InitializeSteps()
	} else {
		s.steps = cloneSteps(snap.Steps)
	}

	s.payments = make([]PaymentResult, len(snap.Payments))
	for i, p := range snap.Payments {
		p.Metadata = copyMetadata(p.Metadata)
		s.payments[i] = p
	}

	return s, nil
}
