package domain

import "time"

// EnrollmentStepType identifies one of the fixed enrollment gates.
type EnrollmentStepType string

const (
	StepDemographicVerification EnrollmentStepType = "DEMOGRAPHIC_VERIFICATION"
	StepDocumentUpload          EnrollmentStepType = "DOCUMENT_UPLOAD"
	StepPlanActivation          EnrollmentStepType = "PLAN_ACTIVATION"
)

// EnrollmentStepOrder is the order in which steps must be completed.
var EnrollmentStepOrder = []EnrollmentStepType{
	StepDemographicVerification,
	StepDocumentUpload,
	StepPlanActivation,
}

type EnrollmentStepStatus string

const (
	StepStatusPending   EnrollmentStepStatus = "PENDING"
	StepStatusCompleted EnrollmentStepStatus = "COMPLETED"
)

// EnrollmentStep is a value; completing a step replaces it in the list.
type EnrollmentStep struct {
	Type        EnrollmentStepType
	Status      EnrollmentStepStatus
	CompletedAt *time.Time
}

func (s EnrollmentStep) IsCompleted() bool {
	return s.Status == StepStatusCompleted
}

func (s EnrollmentStep) clone() EnrollmentStep {
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		s.CompletedAt = &at
	}
	return s
}

func cloneSteps(steps []EnrollmentStep) []EnrollmentStep {
	out := make([]EnrollmentStep, len(steps))
	for i, s := range steps {
		out[i] = s.clone()
	}
	return out
}

// EnrollmentStepManager holds the pure step-list transformations. It owns no
// step state; the clock only stamps completion times.
type EnrollmentStepManager struct {
	clock Clock
}

func NewEnrollmentStepManager(clock Clock) EnrollmentStepManager {
	return EnrollmentStepManager{clock: clockOrDefault(clock)}
}

// InitializeSteps returns the fixed steps, all pending.
func (EnrollmentStepManager) InitializeSteps() []EnrollmentStep {
	steps := make([]EnrollmentStep, len(EnrollmentStepOrder))
	for i, t := range EnrollmentStepOrder {
		steps[i] = EnrollmentStep{Type: t, Status: StepStatusPending}
	}
	return steps
}

// CompleteStep returns a new list with stepType marked completed. A step that
// is already completed keeps its original completion time.
func (m EnrollmentStepManager) CompleteStep(steps []EnrollmentStep, stepType EnrollmentStepType) []EnrollmentStep {
	out := cloneSteps(steps)
	for i := range out {
		if out[i].Type != stepType || out[i].IsCompleted() {
			continue
		}
		now := m.clock.Now()
		out[i] = EnrollmentStep{Type: stepType, Status: StepStatusCompleted, CompletedAt: &now}
	}
	return out
}

func (EnrollmentStepManager) AreAllStepsCompleted(steps []EnrollmentStep) bool {
	for _, s := range steps {
		if !s.IsCompleted() {
			return false
		}
	}
	return true
}

// NextPendingStep returns the first step not yet completed.
func (EnrollmentStepManager) NextPendingStep(steps []EnrollmentStep) (EnrollmentStep, bool) {
	for _, s := range steps {
		if !s.IsCompleted() {
			return s.clone(), true
		}
	}
	return EnrollmentStep{}, false
}
