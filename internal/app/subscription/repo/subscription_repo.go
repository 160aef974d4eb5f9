package repo

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/spanner"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/contracts"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
	"google.golang.org/api/iterator"
)

var _ contracts.SubscriptionRepository = (*SubscriptionRepo)(nil)

// SubscriptionRepo implements the subscription repository interface using Cloud Spanner
type SubscriptionRepo struct {
	client  *spanner.Client
	clock   domain.Clock
	subOpts []domain.SubscriptionOption
}

// NewSubscriptionRepo creates a new subscription repository. opts are applied
// to every subscription it reconstructs.
func NewSubscriptionRepo(client *spanner.Client, clock domain.Clock, opts ...domain.SubscriptionOption) *SubscriptionRepo {
	return &SubscriptionRepo{client: client, clock: clock, subOpts: opts}
}

// Save returns the mutations for persisting a subscription and everything it
// owns. They must be applied together using Apply().
// Items, steps, transitions and payments only ever grow, so upserting every
// row is enough to bring the stored aggregate up to date.
func (r *SubscriptionRepo) Save(ctx context.Context, sub *domain.Subscription) ([]*spanner.Mutation, error) {
	snap := sub.Snapshot()

	m, err := spanner.InsertOrUpdateStruct(subscriptionsTable, toSubscriptionRow(sub, snap))
	if err != nil {
		return nil, fmt.Errorf("failed to build subscription mutation: %w", err)
	}
	mutations := []*spanner.Mutation{m}

	add := func(table string, row interface{}) error {
		m, err := spanner.InsertOrUpdateStruct(table, row)
		if err != nil {
			return fmt.Errorf("failed to build %s mutation: %w", table, err)
		}
		mutations = append(mutations, m)
		return nil
	}

	for i, item := range snap.Items {
		if err := add(subscriptionItemsTable, toItemRow(i, item)); err != nil {
			return nil, err
		}
	}
	for i, step := range snap.Steps {
		if err := add(enrollmentStepsTable, toStepRow(snap.ID, i, step)); err != nil {
			return nil, err
		}
	}
	for i, rec := range snap.History {
		if err := add(stateTransitionsTable, toTransitionRow(snap.ID, i+1, rec)); err != nil {
			return nil, err
		}
	}
	for i, p := range snap.Payments {
		if err := add(paymentTransactionsTable, toPaymentRow(snap.ID, snap.Currency, i+1, p)); err != nil {
			return nil, err
		}
	}

	return mutations, nil
}

// Apply applies the given mutations to the database atomically
func (r *SubscriptionRepo) Apply(ctx context.Context, mutations ...*spanner.Mutation) error {
	_, err := r.client.Apply(ctx, mutations)
	return err
}

// FindByID retrieves a subscription by ID. All tables are read from one
// snapshot so the aggregate is consistent.
func (r *SubscriptionRepo) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	txn := r.client.ReadOnlyTransaction()
	defer txn.Close()

	stmt := spanner.Statement{
		SQL: `
			SELECT id, company_id, employee_id, plan_id, currency, period_start, period_end,
			       status, enrollment_state, total_monthly_cents, company_contribution_cents,
			       employee_contribution_cents, created_at, updated_at
			FROM subscriptions
			WHERE id = @id
		`,
		Params: map[string]interface{}{
			"id": id,
		},
	}

	iter := txn.Query(ctx, stmt)
	defer iter.Stop()

	row, err := iter.Next()
	if err != nil {
		if errors.Is(err, iterator.Done) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}

	var sr subscriptionRow
	if err := row.ToStruct(&sr); err != nil {
		return nil, err
	}

	snap := domain.SubscriptionSnapshot{
		ID:          sr.ID,
		CompanyID:   sr.CompanyID,
		EmployeeID:  sr.EmployeeID,
		PlanID:      sr.PlanID,
		Currency:    sr.Currency,
		PeriodStart: sr.PeriodStart,
		PeriodEnd:   sr.PeriodEnd,
		Status:      domain.SubscriptionStatus(sr.Status),
		State:       domain.EnrollmentState(sr.EnrollmentState),
		CreatedAt:   sr.CreatedAt,
		UpdatedAt:   sr.UpdatedAt,
	}

	if snap.Items, err = readItems(ctx, txn, id); err != nil {
		return nil, err
	}
	if snap.Steps, err = readSteps(ctx, txn, id); err != nil {
		return nil, err
	}
	if snap.History, err = readHistory(ctx, txn, id); err != nil {
		return nil, err
	}
	if snap.Payments, err = readPayments(ctx, txn, id); err != nil {
		return nil, err
	}

	return domain.ReconstructFromPersistence(snap, r.clock, r.subOpts...)
}

func childQuery(sql, id string) spanner.Statement {
	return spanner.Statement{SQL: sql, Params: map[string]interface{}{"id": id}}
}

func readItems(ctx context.Context, txn *spanner.ReadOnlyTransaction, id string) ([]domain.SubscriptionItemSnapshot, error) {
	var items []domain.SubscriptionItemSnapshot
	err := txn.Query(ctx, childQuery(`
		SELECT subscription_id, item_id, position, member_type, member_id, currency,
		       monthly_price_cents, company_contribution_cents, employee_contribution_cents, created_at
		FROM subscription_items
		WHERE subscription_id = @id
		ORDER BY position
	`, id)).Do(func(row *spanner.Row) error {
		var ir itemRow
		if err := row.ToStruct(&ir); err != nil {
			return err
		}
		item, err := ir.toSnapshot()
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read items of %s: %w", id, err)
	}
	return items, nil
}

func readSteps(ctx context.Context, txn *spanner.ReadOnlyTransaction, id string) ([]domain.EnrollmentStep, error) {
	var steps []domain.EnrollmentStep
	err := txn.Query(ctx, childQuery(`
		SELECT subscription_id, step_type, position, status, completed_at
		FROM enrollment_steps
		WHERE subscription_id = @id
		ORDER BY position
	`, id)).Do(func(row *spanner.Row) error {
		var sr stepRow
		if err := row.ToStruct(&sr); err != nil {
			return err
		}
		steps = append(steps, sr.toStep())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read steps of %s: %w", id, err)
	}
	return steps, nil
}

func readHistory(ctx context.Context, txn *spanner.ReadOnlyTransaction, id string) ([]domain.TransitionRecord, error) {
	var history []domain.TransitionRecord
	err := txn.Query(ctx, childQuery(`
		SELECT subscription_id, sequence, from_state, to_state, event, occurred_at
		FROM state_transitions
		WHERE subscription_id = @id
		ORDER BY sequence
	`, id)).Do(func(row *spanner.Row) error {
		var tr transitionRow
		if err := row.ToStruct(&tr); err != nil {
			return err
		}
		history = append(history, tr.toRecord())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read transitions of %s: %w", id, err)
	}
	return history, nil
}

func readPayments(ctx context.Context, txn *spanner.ReadOnlyTransaction, id string) ([]domain.PaymentResult, error) {
	var payments []domain.PaymentResult
	err := txn.Query(ctx, childQuery(`
		SELECT subscription_id, sequence, transaction_id, success, source, currency,
		       company_charged_cents, employee_charged_cents, error_message, metadata, processed_at
		FROM payment_transactions
		WHERE subscription_id = @id
		ORDER BY sequence
	`, id)).Do(func(row *spanner.Row) error {
		var pr paymentRow
		if err := row.ToStruct(&pr); err != nil {
			return err
		}
		p, err := pr.toResult()
		if err != nil {
			return err
		}
		payments = append(payments, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read payments of %s: %w", id, err)
	}
	return payments, nil
}
