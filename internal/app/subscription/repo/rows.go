package repo

import (
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
)

const (
	subscriptionsTable       = "subscriptions"
	subscriptionItemsTable   = "subscription_items"
	enrollmentStepsTable     = "enrollment_steps"
	stateTransitionsTable    = "state_transitions"
	paymentTransactionsTable = "payment_transactions"
)

type subscriptionRow struct {
	ID                        string    `spanner:"id"`
	CompanyID                 string    `spanner:"company_id"`
	EmployeeID                string    `spanner:"employee_id"`
	PlanID                    string    `spanner:"plan_id"`
	Currency                  string    `spanner:"currency"`
	PeriodStart               time.Time `spanner:"period_start"`
	PeriodEnd                 time.Time `spanner:"period_end"`
	Status                    string    `spanner:"status"`
	EnrollmentState           string    `spanner:"enrollment_state"`
	TotalMonthlyCents         int64     `spanner:"total_monthly_cents"`
	CompanyContributionCents  int64     `spanner:"company_contribution_cents"`
	EmployeeContributionCents int64     `spanner:"employee_contribution_cents"`
	CreatedAt                 time.Time `spanner:"created_at"`
	UpdatedAt                 time.Time `spanner:"updated_at"`
}

type itemRow struct {
	SubscriptionID            string    `spanner:"subscription_id"`
	ItemID                    string    `spanner:"item_id"`
	Position                  int64     `spanner:"position"`
	MemberType                string    `spanner:"member_type"`
	MemberID                  string    `spanner:"member_id"`
	Currency                  string    `spanner:"currency"`
	MonthlyPriceCents         int64     `spanner:"monthly_price_cents"`
	CompanyContributionCents  int64     `spanner:"company_contribution_cents"`
	EmployeeContributionCents int64     `spanner:"employee_contribution_cents"`
	CreatedAt                 time.Time `spanner:"created_at"`
}

type stepRow struct {
	SubscriptionID string           `spanner:"subscription_id"`
	StepType       string           `spanner:"step_type"`
	Position       int64            `spanner:"position"`
	Status         string           `spanner:"status"`
	CompletedAt    spanner.NullTime `spanner:"completed_at"`
}

type transitionRow struct {
	SubscriptionID string    `spanner:"subscription_id"`
	Sequence       int64     `spanner:"sequence"`
	FromState      string    `spanner:"from_state"`
	ToState        string    `spanner:"to_state"`
	Event          string    `spanner:"event"`
	OccurredAt     time.Time `spanner:"occurred_at"`
}

type paymentRow struct {
	SubscriptionID       string             `spanner:"subscription_id"`
	Sequence             int64              `spanner:"sequence"`
	TransactionID        spanner.NullString `spanner:"transaction_id"`
	Success              bool               `spanner:"success"`
	Source               string             `spanner:"source"`
	Currency             string             `spanner:"currency"`
	CompanyChargedCents  int64              `spanner:"company_charged_cents"`
	EmployeeChargedCents int64              `spanner:"employee_charged_cents"`
	ErrorMessage         spanner.NullString `spanner:"error_message"`
	Metadata             spanner.NullJSON   `spanner:"metadata"`
	ProcessedAt          time.Time          `spanner:"processed_at"`
}

func toSubscriptionRow(sub *domain.Subscription, snap domain.SubscriptionSnapshot) subscriptionRow {
	allocation := sub.AggregatePaymentAllocation()
	return subscriptionRow{
		ID:                        snap.ID,
		CompanyID:                 snap.CompanyID,
		EmployeeID:                snap.EmployeeID,
		PlanID:                    snap.PlanID,
		Currency:                  snap.Currency,
		PeriodStart:               snap.PeriodStart,
		PeriodEnd:                 snap.PeriodEnd,
		Status:                    string(snap.Status),
		EnrollmentState:           string(snap.State),
		TotalMonthlyCents:         sub.TotalMonthlyAmount().Cents(),
		CompanyContributionCents:  allocation.CompanyContribution().Cents(),
		EmployeeContributionCents: allocation.EmployeeContribution().Cents(),
		CreatedAt:                 snap.CreatedAt,
		UpdatedAt:                 snap.UpdatedAt,
	}
}

func toItemRow(position int, item domain.SubscriptionItemSnapshot) itemRow {
	return itemRow{
		SubscriptionID:            item.SubscriptionID,
		ItemID:                    item.ID,
		Position:                  int64(position),
		MemberType:                string(item.MemberType),
		MemberID:                  item.MemberID,
		Currency:                  item.MonthlyPrice.Currency(),
		MonthlyPriceCents:         item.MonthlyPrice.Cents(),
		CompanyContributionCents:  item.PaymentAllocation.CompanyContribution().Cents(),
		EmployeeContributionCents: item.PaymentAllocation.EmployeeContribution().Cents(),
		CreatedAt:                 item.CreatedAt,
	}
}

func (r itemRow) toSnapshot() (domain.SubscriptionItemSnapshot, error) {
	price, err := domain.MoneyFromCents(r.MonthlyPriceCents, r.Currency)
	if err != nil {
		return domain.SubscriptionItemSnapshot{}, fmt.Errorf("item %s price: %w", r.ItemID, err)
	}
	company, err := domain.MoneyFromCents(r.CompanyContributionCents, r.Currency)
	if err != nil {
		return domain.SubscriptionItemSnapshot{}, fmt.Errorf("item %s company share: %w", r.ItemID, err)
	}
	employee, err := domain.MoneyFromCents(r.EmployeeContributionCents, r.Currency)
	if err != nil {
		return domain.SubscriptionItemSnapshot{}, fmt.Errorf("item %s employee share: %w", r.ItemID, err)
	}
	allocation, err := domain.NewPaymentAllocation(company, employee)
	if err != nil {
		return domain.SubscriptionItemSnapshot{}, fmt.Errorf("item %s allocation: %w", r.ItemID, err)
	}
	return domain.SubscriptionItemSnapshot{
		ID:                r.ItemID,
		SubscriptionID:    r.SubscriptionID,
		MemberType:        domain.MemberType(r.MemberType),
		MemberID:          r.MemberID,
		MonthlyPrice:      price,
		PaymentAllocation: allocation,
		CreatedAt:         r.CreatedAt,
	}, nil
}

func toStepRow(subscriptionID string, position int, step domain.EnrollmentStep) stepRow {
	row := stepRow{
		SubscriptionID: subscriptionID,
		StepType:       string(step.Type),
		Position:       int64(position),
		Status:         string(step.Status),
	}
	if step.CompletedAt != nil {
		row.CompletedAt = spanner.NullTime{Time: *step.CompletedAt, Valid: true}
	}
	return row
}

func (r stepRow) toStep() domain.EnrollmentStep {
	step := domain.EnrollmentStep{
		Type:   domain.EnrollmentStepType(r.StepType),
		Status: domain.EnrollmentStepStatus(r.Status),
	}
	if r.CompletedAt.Valid {
		at := r.CompletedAt.Time
		step.CompletedAt = &at
	}
	return step
}

func toTransitionRow(subscriptionID string, sequence int, rec domain.TransitionRecord) transitionRow {
	return transitionRow{
		SubscriptionID: subscriptionID,
		Sequence:       int64(sequence),
		FromState:      string(rec.From),
		ToState:        string(rec.To),
		Event:          string(rec.Event),
		OccurredAt:     rec.Timestamp,
	}
}

func (r transitionRow) toRecord() domain.TransitionRecord {
	return domain.TransitionRecord{
		From:      domain.EnrollmentState(r.FromState),
		To:        domain.EnrollmentState(r.ToState),
		Event:     domain.EnrollmentEvent(r.Event),
		Timestamp: r.OccurredAt,
	}
}

func toPaymentRow(subscriptionID, fallbackCurrency string, sequence int, p domain.PaymentResult) paymentRow {
	currency := p.CompanyCharged.Currency()
	if currency == "" {
		currency = fallbackCurrency
	}
	row := paymentRow{
		SubscriptionID:       subscriptionID,
		Sequence:             int64(sequence),
		TransactionID:        spanner.NullString{StringVal: p.TransactionID, Valid: p.TransactionID != ""},
		Success:              p.Success,
		Source:               string(p.Source),
		Currency:             currency,
		CompanyChargedCents:  p.CompanyCharged.Cents(),
		EmployeeChargedCents: p.EmployeeCharged.Cents(),
		ErrorMessage:         spanner.NullString{StringVal: p.ErrorMessage, Valid: p.ErrorMessage != ""},
		ProcessedAt:          p.ProcessedAt,
	}
	if p.Metadata != nil {
		row.Metadata = spanner.NullJSON{Value: p.Metadata, Valid: true}
	}
	return row
}

func (r paymentRow) toResult() (domain.PaymentResult, error) {
	company, err := domain.MoneyFromCents(r.CompanyChargedCents, r.Currency)
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("payment %d company charge: %w", r.Sequence, err)
	}
	employee, err := domain.MoneyFromCents(r.EmployeeChargedCents, r.Currency)
	if err != nil {
		return domain.PaymentResult{}, fmt.Errorf("payment %d employee charge: %w", r.Sequence, err)
	}
	return domain.PaymentResult{
		Success:         r.Success,
		TransactionID:   r.TransactionID.StringVal,
		ErrorMessage:    r.ErrorMessage.StringVal,
		ProcessedAt:     r.ProcessedAt,
		Source:          domain.AllocationSource(r.Source),
		CompanyCharged:  company,
		EmployeeCharged: employee,
		Metadata:        metadataFromJSON(r.Metadata),
	}, nil
}

// metadataFromJSON flattens a decoded JSON object back into string pairs.
func metadataFromJSON(j spanner.NullJSON) map[string]string {
	if !j.Valid {
		return nil
	}
	switch v := j.Value.(type) {
	case map[string]string:
		return v
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = fmt.Sprint(val)
		}
		return out
	}
	return nil
}
