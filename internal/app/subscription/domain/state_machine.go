package domain

import (
	"fmt"
	"time"
)

// EnrollmentState is a lifecycle state of the enrollment state machine.
type EnrollmentState string

const (
	StateDraft             EnrollmentState = "DRAFT"
	StateEnrollmentStarted EnrollmentState = "ENROLLMENT_STARTED"
	StatePaymentPending    EnrollmentState = "PAYMENT_PENDING"
	StatePaymentProcessed  EnrollmentState = "PAYMENT_PROCESSED"
	StateActive            EnrollmentState = "ACTIVE"
	StateSuspended         EnrollmentState = "SUSPENDED"
	StateCancelled         EnrollmentState = "CANCELLED"
	StateExpired           EnrollmentState = "EXPIRED"
)

// AllEnrollmentStates lists every state in declaration order.
var AllEnrollmentStates = []EnrollmentState{
	StateDraft, StateEnrollmentStarted, StatePaymentPending, StatePaymentProcessed,
	StateActive, StateSuspended, StateCancelled, StateExpired,
}

func (s EnrollmentState) String() string {
	return string(s)
}

// IsTerminal reports whether no transition leaves the state.
func (s EnrollmentState) IsTerminal() bool {
	return s == StateCancelled || s == StateExpired
}

// EnrollmentEvent triggers a state transition.
type EnrollmentEvent string

const (
	EventStartEnrollment EnrollmentEvent = "START_ENROLLMENT"
	EventProcessPayment  EnrollmentEvent = "PROCESS_PAYMENT"
	EventPaymentSuccess  EnrollmentEvent = "PAYMENT_SUCCESS"
	EventPaymentFailed   EnrollmentEvent = "PAYMENT_FAILED"
	EventActivate        EnrollmentEvent = "ACTIVATE"
	EventCancel          EnrollmentEvent = "CANCEL"
	EventExpire          EnrollmentEvent = "EXPIRE"
)

// AllEnrollmentEvents lists every event in declaration order.
var AllEnrollmentEvents = []EnrollmentEvent{
	EventStartEnrollment, EventProcessPayment, EventPaymentSuccess, EventPaymentFailed,
	EventActivate, EventCancel, EventExpire,
}

func (e EnrollmentEvent) String() string {
	return string(e)
}

// StateTransition is one row of the transition table.
type StateTransition struct {
	From  EnrollmentState
	Event EnrollmentEvent
	To    EnrollmentState
}

// EnrollmentTransitions is the full lifecycle table. SUSPENDED is a declared
// state with no table entries; it is only reachable through WithInitialState.
var EnrollmentTransitions = []StateTransition{
	{From: StateDraft, Event: EventStartEnrollment, To: StateEnrollmentStarted},
	{From: StateDraft, Event: EventCancel, To: StateCancelled},
	{From: StateEnrollmentStarted, Event: EventProcessPayment, To: StatePaymentPending},
	{From: StateEnrollmentStarted, Event: EventCancel, To: StateCancelled},
	{From: StatePaymentPending, Event: EventPaymentSuccess, To: StatePaymentProcessed},
	{From: StatePaymentPending, Event: EventPaymentFailed, To: StateEnrollmentStarted},
	{From: StatePaymentPending, Event: EventCancel, To: StateCancelled},
	{From: StatePaymentProcessed, Event: EventActivate, To: StateActive},
	{From: StatePaymentProcessed, Event: EventCancel, To: StateCancelled},
	{From: StateActive, Event: EventCancel, To: StateCancelled},
	{From: StateActive, Event: EventExpire, To: StateExpired},
}

// TransitionRecord is an entry in the append-only transition history.
type TransitionRecord struct {
	From      EnrollmentState
	To        EnrollmentState
	Event     EnrollmentEvent
	Timestamp time.Time
}

// TransitionGuard vetoes a transition when it returns false.
type TransitionGuard func() bool

// TransitionAction runs before the state changes; an error aborts the transition.
type TransitionAction func(from, to EnrollmentState) error

type transitionKey struct {
	from  EnrollmentState
	event EnrollmentEvent
}

type transitionDef struct {
	to     EnrollmentState
	guard  TransitionGuard
	action TransitionAction
}

// EnrollmentStateMachine drives the enrollment lifecycle. It is not safe for
// concurrent use; the owning aggregate serializes access.
type EnrollmentStateMachine struct {
	current EnrollmentState
	table   map[transitionKey]transitionDef
	history []TransitionRecord
	clock   Clock
}

// StateMachineOption configures an EnrollmentStateMachine.
type StateMachineOption func(*EnrollmentStateMachine)

func WithInitialState(state EnrollmentState) StateMachineOption {
	return func(m *EnrollmentStateMachine) {
		m.current = state
	}
}

// WithGuard attaches a guard to an existing table entry.
func WithGuard(from EnrollmentState, event EnrollmentEvent, guard TransitionGuard) StateMachineOption {
	return func(m *EnrollmentStateMachine) {
		key := transitionKey{from: from, event: event}
		if def, ok := m.table[key]; ok {
			def.guard = guard
			m.table[key] = def
		}
	}
}

// WithAction attaches an action to an existing table entry.
func WithAction(from EnrollmentState, event EnrollmentEvent, action TransitionAction) StateMachineOption {
	return func(m *EnrollmentStateMachine) {
		key := transitionKey{from: from, event: event}
		if def, ok := m.table[key]; ok {
			def.action = action
			m.table[key] = def
		}
	}
}

func NewEnrollmentStateMachine(clock Clock, opts ...StateMachineOption) *EnrollmentStateMachine {
	m := &EnrollmentStateMachine{
		current: StateDraft,
		table:   make(map[transitionKey]transitionDef, len(EnrollmentTransitions)),
		clock:   clockOrDefault(clock),
	}
	for _, t := range EnrollmentTransitions {
		m.table[transitionKey{from: t.From, event: t.Event}] = transitionDef{to: t.To}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RestoreEnrollmentStateMachine rebuilds a machine from persisted state and history.
func RestoreEnrollmentStateMachine(current EnrollmentState, history []TransitionRecord, clock Clock) *EnrollmentStateMachine {
	m := NewEnrollmentStateMachine(clock, WithInitialState(current))
	m.history = append([]TransitionRecord(nil), history...)
	return m
}

func (m *EnrollmentStateMachine) CurrentState() EnrollmentState {
	return m.current
}

func (m *EnrollmentStateMachine) IsTerminal() bool {
	return m.current.IsTerminal()
}

// CanTransition reports whether event has a table entry from the current
// state and its guard, if any, passes.
func (m *EnrollmentStateMachine) CanTransition(event EnrollmentEvent) bool {
	def, ok := m.table[transitionKey{from: m.current, event: event}]
	if !ok {
		return false
	}
	return def.guard == nil || def.guard()
}

// AvailableEvents returns the events currently accepted, in declaration order.
func (m *EnrollmentStateMachine) AvailableEvents() []EnrollmentEvent {
	var events []EnrollmentEvent
	for _, e := range AllEnrollmentEvents {
		if m.CanTransition(e) {
			events = append(events, e)
		}
	}
	return events
}

// Transition fires event. Nothing changes unless the entry exists, its guard
// passes and its action succeeds.
func (m *EnrollmentStateMachine) Transition(event EnrollmentEvent) error {
	from := m.current
	def, ok := m.table[transitionKey{from: from, event: event}]
	if !ok {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
	}
	if def.guard != nil && !def.guard() {
		return fmt.Errorf("%w: guard rejected %s from %s", ErrInvalidTransition, event, from)
	}
	if def.action != nil {
		if err := def.action(from, def.to); err != nil {
			return fmt.Errorf("transition %s from %s: %w", event, from, err)
		}
	}

	m.current = def.to
	m.history = append(m.history, TransitionRecord{
		From:      from,
		To:        def.to,
		Event:     event,
		Timestamp: m.clock.Now(),
	})
	return nil
}

// History returns a copy of the recorded transitions, oldest first.
func (m *EnrollmentStateMachine) History() []TransitionRecord {
	return append([]TransitionRecord(nil), m.history...)
}
