package domain

import "fmt"

// MaxChildrenPerSubscription caps CHILD items on one subscription.
const MaxChildrenPerSubscription = 10

// SubscriptionValidationService holds the stateless business-rule checks the
// aggregate runs before mutating itself.
type SubscriptionValidationService struct{}

// ValidateCanModifyItems allows item changes only before enrollment starts.
func (SubscriptionValidationService) ValidateCanModifyItems(status SubscriptionStatus) error {
	if status != StatusDraft {
		return fmt.Errorf("%w: status is %s", ErrCannotModifyItems, status)
	}
	return nil
}

func (SubscriptionValidationService) ValidateEmployeeFirst(items []SubscriptionItem, memberType MemberType) error {
	if len(items) == 0 && memberType != MemberEmployee {
		return fmt.Errorf("%w: got %s", ErrEmployeeRequiredFirst, memberType)
	}
	return nil
}

func (SubscriptionValidationService) ValidateNoDuplicateMember(items []SubscriptionItem, memberID string) error {
	for _, item := range items {
		if item.memberID == memberID {
			return fmt.Errorf("%w: %s", ErrDuplicateMember, memberID)
		}
	}
	return nil
}

func (SubscriptionValidationService) ValidateChildrenLimit(items []SubscriptionItem, memberType MemberType) error {
	if memberType != MemberChild {
		return nil
	}
	children := 0
	for _, item := range items {
		if item.memberType == MemberChild {
			children++
		}
	}
	if children >= MaxChildrenPerSubscription {
		return fmt.Errorf("%w: at most %d children allowed", ErrChildrenLimitExceeded, MaxChildrenPerSubscription)
	}
	return nil
}

func (SubscriptionValidationService) ValidateCanCompleteSteps(status SubscriptionStatus) error {
	if status != StatusPending {
		return fmt.Errorf("%w: status is %s", ErrInvalidStepStatus, status)
	}
	return nil
}

// ValidateStepCompletion checks the step exists, is still pending and that
// every earlier step in the fixed order is already completed.
func (SubscriptionValidationService) ValidateStepCompletion(steps []EnrollmentStep, stepType EnrollmentStepType) error {
	idx := -1
	for i, s := range steps {
		if s.Type == stepType {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, stepType)
	}
	if steps[idx].IsCompleted() {
		return fmt.Errorf("%w: %s", ErrStepAlreadyCompleted, stepType)
	}
	for _, prev := range steps[:idx] {
		if !prev.IsCompleted() {
			return fmt.Errorf("%w: %s must be completed before %s", ErrStepOutOfOrder, prev.Type, stepType)
		}
	}
	return nil
}
