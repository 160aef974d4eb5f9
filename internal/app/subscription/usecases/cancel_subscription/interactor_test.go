package cancel_subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/spanner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/metrics"
)

// MockRepository is a mock implementation of SubscriptionRepository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Save(ctx context.Context, sub *domain.Subscription) ([]*spanner.Mutation, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*spanner.Mutation), args.Error(1)
}

func (m *MockRepository) Apply(ctx context.Context, mutations ...*spanner.Mutation) error {
	// Convert variadic to slice for mock
	args := m.Called(ctx, mutations)
	return args.Error(0)
}

func (m *MockRepository) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

// MockLocker is a mock implementation of SubscriptionLocker
type MockLocker struct {
	mock.Mock
	released int
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	args := m.Called(ctx, key, ttl)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func() { m.released++ }, nil
}

const lockTTL = 30 * time.Second

var cancelDate = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

func newSubscription(t *testing.T, status domain.SubscriptionStatus, state domain.EnrollmentState) *domain.Subscription {
	t.Helper()
	price := domain.MustMoney(300, "USD")
	sub, err := domain.ReconstructFromPersistence(domain.SubscriptionSnapshot{
		ID:          "sub-123",
		CompanyID:   "company-1",
		EmployeeID:  "emp-1",
		PlanID:      "plan-gold",
		Currency:    "USD",
		PeriodStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:      status,
		State:       state,
		Items: []domain.SubscriptionItemSnapshot{{
			ID:                "item-1",
			SubscriptionID:    "sub-123",
			MemberType:        domain.MemberEmployee,
			MemberID:          "emp-1",
			MonthlyPrice:      price,
			PaymentAllocation: domain.CompanyPaid(price),
			CreatedAt:         time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		}},
		CreatedAt: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}, domain.FixedClock{FixedTime: cancelDate})
	require.NoError(t, err)
	return sub
}

func TestCancelSubscription_Success(t *testing.T) {
	// Setup
	ctx := context.Background()
	sub := newSubscription(t, domain.StatusActive, domain.StateActive)

	mockRepo := new(MockRepository)
	mockLocker := new(MockLocker)
	m := metrics.New(prometheus.NewRegistry())

	interactor := NewInteractor(mockRepo, mockLocker, lockTTL, m, nil)

	// Expectations
	mockLocker.On("Acquire", ctx, "sub-123", lockTTL).Return(nil)
	mockRepo.On("FindByID", ctx, "sub-123").Return(sub, nil)
	mockMutations := []*spanner.Mutation{{}}
	mockRepo.On("Save", ctx, mock.MatchedBy(func(s *domain.Subscription) bool {
		return s.ID() == "sub-123" && s.Status() == domain.StatusCancelled
	})).Return(mockMutations, nil)
	// Apply accepts variadic mutations (becomes []*spanner.Mutation when called)
	mockRepo.On("Apply", ctx, mockMutations).Return(nil)

	// Execute
	event, err := interactor.Execute(ctx, "sub-123")

	// Assert
	assert.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "sub-123", event.SubscriptionID)
	assert.Equal(t, domain.StateActive, event.PreviousState)
	assert.Equal(t, cancelDate, event.CancelledAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CancellationsTotal))
	assert.Equal(t, 1, mockLocker.released)
	mockRepo.AssertExpectations(t)
}

func TestCancelSubscription_AlreadyCancelled(t *testing.T) {
	// Setup
	ctx := context.Background()
	sub := newSubscription(t, domain.StatusCancelled, domain.StateCancelled)

	mockRepo := new(MockRepository)
	mockLocker := new(MockLocker)

	interactor := NewInteractor(mockRepo, mockLocker, lockTTL, nil, nil)

	// Expectations
	mockLocker.On("Acquire", ctx, "sub-123", lockTTL).Return(nil)
	mockRepo.On("FindByID", ctx, "sub-123").Return(sub, nil)
	// Save should NOT be called
	// Apply should NOT be called

	// Execute
	event, err := interactor.Execute(ctx, "sub-123")

	// Assert
	assert.Error(t, err)
	assert.Equal(t, domain.ErrAlreadyCancelled, err)
	assert.Nil(t, event)
	mockRepo.AssertNotCalled(t, "Save", ctx, mock.Anything)
	mockRepo.AssertNotCalled(t, "Apply", ctx, mock.Anything)
}

func TestCancelSubscription_FromEachOpenState(t *testing.T) {
	testCases := []struct {
		name   string
		status domain.SubscriptionStatus
		state  domain.EnrollmentState
	}{
		{name: "draft", status: domain.StatusDraft, state: domain.StateDraft},
		{name: "enrollment started", status: domain.StatusPending, state: domain.StateEnrollmentStarted},
		{name: "paid awaiting coverage", status: domain.StatusPending, state: domain.StatePaymentProcessed},
		{name: "active", status: domain.StatusActive, state: domain.StateActive},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			sub := newSubscription(t, tc.status, tc.state)

			mockRepo := new(MockRepository)
			mockLocker := new(MockLocker)
			interactor := NewInteractor(mockRepo, mockLocker, lockTTL, nil, nil)

			mockLocker.On("Acquire", ctx, "sub-123", lockTTL).Return(nil)
			mockRepo.On("FindByID", ctx, "sub-123").Return(sub, nil)
			mockRepo.On("Save", ctx, mock.Anything).Return([]*spanner.Mutation{{}}, nil)
			mockRepo.On("Apply", ctx, mock.Anything).Return(nil)

			event, err := interactor.Execute(ctx, "sub-123")

			require.NoError(t, err)
			assert.Equal(t, tc.state, event.PreviousState)
			assert.Equal(t, domain.StateCancelled, sub.State())
		})
	}
}

func TestCancelSubscription_Expired(t *testing.T) {
	// Setup
	ctx := context.Background()
	sub := newSubscription(t, domain.StatusExpired, domain.StateExpired)

	mockRepo := new(MockRepository)
	mockLocker := new(MockLocker)
	interactor := NewInteractor(mockRepo, mockLocker, lockTTL, nil, nil)

	mockLocker.On("Acquire", ctx, "sub-123", lockTTL).Return(nil)
	mockRepo.On("FindByID", ctx, "sub-123").Return(sub, nil)

	// Execute
	_, err := interactor.Execute(ctx, "sub-123")

	// Assert
	assert.ErrorIs(t, err, domain.ErrInvalidStateForCancel)
	mockRepo.AssertNotCalled(t, "Save", ctx, mock.Anything)
}

func TestCancelSubscription_SaveFails(t *testing.T) {
	// Setup
	ctx := context.Background()
	sub := newSubscription(t, domain.StatusActive, domain.StateActive)
	saveErr := errors.New("mutation build failed")

	mockRepo := new(MockRepository)
	mockLocker := new(MockLocker)
	m := metrics.New(prometheus.NewRegistry())
	interactor := NewInteractor(mockRepo, mockLocker, lockTTL, m, nil)

	mockLocker.On("Acquire", ctx, "sub-123", lockTTL).Return(nil)
	mockRepo.On("FindByID", ctx, "sub-123").Return(sub, nil)
	mockRepo.On("Save", ctx, mock.Anything).Return(nil, saveErr)

	// Execute
	event, err := interactor.Execute(ctx, "sub-123")

	// Assert
	assert.ErrorIs(t, err, saveErr)
	assert.Nil(t, event)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CancellationsTotal))
	mockRepo.AssertNotCalled(t, "Apply", ctx, mock.Anything)
}
