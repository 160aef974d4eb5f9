package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentStepManager_InitializeSteps(t *testing.T) {
	manager := NewEnrollmentStepManager(FixedClock{})

	steps := manager.InitializeSteps()

	require.Len(t, steps, 3)
	for i, step := range steps {
		assert.Equal(t, EnrollmentStepOrder[i], step.Type)
		assert.Equal(t, StepStatusPending, step.Status)
		assert.Nil(t, step.CompletedAt)
	}
	assert.False(t, manager.AreAllStepsCompleted(steps))
}

func TestEnrollmentStepManager_CompleteStep(t *testing.T) {
	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	manager := NewEnrollmentStepManager(FixedClock{FixedTime: first})
	steps := manager.InitializeSteps()

	completed := manager.CompleteStep(steps, StepDemographicVerification)

	assert.Equal(t, StepStatusPending, steps[0].Status, "input list must not change")
	require.True(t, completed[0].IsCompleted())
	assert.Equal(t, first, *completed[0].CompletedAt)
	assert.Equal(t, StepStatusPending, completed[1].Status)

	next, ok := manager.NextPendingStep(completed)
	require.True(t, ok)
	assert.Equal(t, StepDocumentUpload, next.Type)
}

func TestEnrollmentStepManager_CompleteStepIsIdempotent(t *testing.T) {
	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	steps := NewEnrollmentStepManager(FixedClock{FixedTime: first}).InitializeSteps()
	once := NewEnrollmentStepManager(FixedClock{FixedTime: first}).CompleteStep(steps, StepDemographicVerification)

	later := NewEnrollmentStepManager(FixedClock{FixedTime: first.Add(time.Hour)})
	twice := later.CompleteStep(once, StepDemographicVerification)

	assert.Equal(t, once, twice)
	assert.Equal(t, first, *twice[0].CompletedAt)
}

func TestEnrollmentStepManager_AllCompleted(t *testing.T) {
	manager := NewEnrollmentStepManager(FixedClock{})
	steps := manager.InitializeSteps()
	for _, stepType := range EnrollmentStepOrder {
		steps = manager.CompleteStep(steps, stepType)
	}

	assert.True(t, manager.AreAllStepsCompleted(steps))
	_, ok := manager.NextPendingStep(steps)
	assert.False(t, ok)
}

func TestSubscriptionValidationService(t *testing.T) {
	v := SubscriptionValidationService{}
	employee := SubscriptionItem{memberType: MemberEmployee, memberID: "emp-1"}

	assert.NoError(t, v.ValidateCanModifyItems(StatusDraft))
	assert.ErrorIs(t, v.ValidateCanModifyItems(StatusPending), ErrCannotModifyItems)

	assert.ErrorIs(t, v.ValidateEmployeeFirst(nil, MemberSpouse), ErrEmployeeRequiredFirst)
	assert.NoError(t, v.ValidateEmployeeFirst(nil, MemberEmployee))
	assert.NoError(t, v.ValidateEmployeeFirst([]SubscriptionItem{employee}, MemberChild))

	assert.ErrorIs(t, v.ValidateNoDuplicateMember([]SubscriptionItem{employee}, "emp-1"), ErrDuplicateMember)
	assert.NoError(t, v.ValidateNoDuplicateMember([]SubscriptionItem{employee}, "sp-1"))

	assert.NoError(t, v.ValidateCanCompleteSteps(StatusPending))
	assert.ErrorIs(t, v.ValidateCanCompleteSteps(StatusDraft), ErrInvalidStepStatus)
}

func TestSubscriptionValidationService_ChildrenLimit(t *testing.T) {
	v := SubscriptionValidationService{}
	items := []SubscriptionItem{{memberType: MemberEmployee, memberID: "emp-1"}}
	for i := 0; i < MaxChildrenPerSubscription-1; i++ {
		items = append(items, SubscriptionItem{memberType: MemberChild})
	}

	assert.NoError(t, v.ValidateChildrenLimit(items, MemberChild))

	items = append(items, SubscriptionItem{memberType: MemberChild})
	assert.ErrorIs(t, v.ValidateChildrenLimit(items, MemberChild), ErrChildrenLimitExceeded)
	assert.NoError(t, v.ValidateChildrenLimit(items, MemberSpouse))
}

func TestSubscriptionValidationService_StepCompletion(t *testing.T) {
	v := SubscriptionValidationService{}
	manager := NewEnrollmentStepManager(FixedClock{})
	steps := manager.InitializeSteps()

	err := v.ValidateStepCompletion(steps, StepPlanActivation)
	assert.ErrorIs(t, err, ErrStepOutOfOrder)
	assert.Contains(t, err.Error(), string(StepDemographicVerification))

	assert.ErrorIs(t, v.ValidateStepCompletion(steps, "BENEFICIARY_REVIEW"), ErrStepNotFound)
	assert.NoError(t, v.ValidateStepCompletion(steps, StepDemographicVerification))

	steps = manager.CompleteStep(steps, StepDemographicVerification)
	assert.ErrorIs(t, v.ValidateStepCompletion(steps, StepDemographicVerification), ErrStepAlreadyCompleted)
	assert.NoError(t, v.ValidateStepCompletion(steps, StepDocumentUpload))
}
