package domain

import "time"

// SubscriptionCreatedEvent is emitted when a subscription is created
type SubscriptionCreatedEvent struct {
	SubscriptionID string
	CompanyID      string
	EmployeeID     string
	PlanID         string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	CreatedAt      time.Time
}

// SubscriptionCancelledEvent is emitted when a subscription is cancelled
type SubscriptionCancelledEvent struct {
	SubscriptionID string
	CompanyID      string
	EmployeeID     string
	PreviousState  EnrollmentState
	CancelledAt    time.Time
}

// EnrollmentStartedEvent is emitted when a draft subscription enters enrollment
type EnrollmentStartedEvent struct {
	SubscriptionID string
	CompanyID      string
	EmployeeID     string
	ItemCount      int
	StartedAt      time.Time
}

// EnrollmentStepCompletedEvent is emitted for every completed step. Payment is
// set when the step was the last one and a payment was attempted.
type EnrollmentStepCompletedEvent struct {
	SubscriptionID string
	Step           EnrollmentStepType
	State          EnrollmentState
	Payment        *PaymentResult
	CompletedAt    time.Time
}

// SubscriptionActivatedEvent is emitted when coverage becomes active
type SubscriptionActivatedEvent struct {
	SubscriptionID string
	CompanyID      string
	EmployeeID     string
	ActivatedAt    time.Time
}
