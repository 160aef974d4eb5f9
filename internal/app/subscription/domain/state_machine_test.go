package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentStateMachine_AcceptedEventsMatchTable(t *testing.T) {
	expected := map[EnrollmentState][]EnrollmentEvent{
		StateDraft:             {EventStartEnrollment, EventCancel},
		StateEnrollmentStarted: {EventProcessPayment, EventCancel},
		StatePaymentPending:    {EventPaymentSuccess, EventPaymentFailed, EventCancel},
		StatePaymentProcessed:  {EventActivate, EventCancel},
		StateActive:            {EventCancel, EventExpire},
		StateSuspended:         nil,
		StateCancelled:         nil,
		StateExpired:           nil,
	}

	for _, state := range AllEnrollmentStates {
		t.Run(string(state), func(t *testing.T) {
			machine := NewEnrollmentStateMachine(FixedClock{}, WithInitialState(state))

			for _, event := range AllEnrollmentEvents {
				assert.Equal(t, contains(expected[state], event), machine.CanTransition(event),
					"event %s from %s", event, state)
			}
			assert.ElementsMatch(t, expected[state], machine.AvailableEvents())
		})
	}
}

func contains(events []EnrollmentEvent, event EnrollmentEvent) bool {
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}

func TestEnrollmentStateMachine_TransitionFromCancelledFails(t *testing.T) {
	machine := NewEnrollmentStateMachine(FixedClock{}, WithInitialState(StateCancelled))

	err := machine.Transition(EventProcessPayment)

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateCancelled, machine.CurrentState())
	assert.Empty(t, machine.History())
	assert.True(t, machine.IsTerminal())
}

func TestEnrollmentStateMachine_RecordsHistory(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	machine := NewEnrollmentStateMachine(FixedClock{FixedTime: now})

	events := []EnrollmentEvent{
		EventStartEnrollment,
		EventProcessPayment,
		EventPaymentFailed,
		EventProcessPayment,
		EventPaymentSuccess,
		EventActivate,
	}
	for _, e := range events {
		require.NoError(t, machine.Transition(e))
	}

	history := machine.History()
	require.Len(t, history, len(events))
	assert.Equal(t, TransitionRecord{From: StateDraft, To: StateEnrollmentStarted, Event: EventStartEnrollment, Timestamp: now}, history[0])
	assert.Equal(t, TransitionRecord{From: StatePaymentPending, To: StateEnrollmentStarted, Event: EventPaymentFailed, Timestamp: now}, history[2])
	assert.Equal(t, StateActive, machine.CurrentState())

	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].To, history[i].From)
	}
}

func TestEnrollmentStateMachine_HistoryIsACopy(t *testing.T) {
	machine := NewEnrollmentStateMachine(FixedClock{})
	require.NoError(t, machine.Transition(EventStartEnrollment))

	history := machine.History()
	history[0].To = StateExpired

	fresh := machine.History()
	require.Len(t, fresh, 1)
	assert.Equal(t, StateEnrollmentStarted, fresh[0].To)
}

func TestEnrollmentStateMachine_Guard(t *testing.T) {
	allowed := false
	machine := NewEnrollmentStateMachine(FixedClock{},
		WithGuard(StateDraft, EventStartEnrollment, func() bool { return allowed }))

	assert.False(t, machine.CanTransition(EventStartEnrollment))
	assert.ErrorIs(t, machine.Transition(EventStartEnrollment), ErrInvalidTransition)
	assert.Equal(t, StateDraft, machine.CurrentState())

	allowed = true
	require.NoError(t, machine.Transition(EventStartEnrollment))
	assert.Equal(t, StateEnrollmentStarted, machine.CurrentState())
}

func TestEnrollmentStateMachine_ActionErrorAbortsTransition(t *testing.T) {
	boom := errors.New("boom")
	var seenFrom, seenTo EnrollmentState
	machine := NewEnrollmentStateMachine(FixedClock{},
		WithAction(StateDraft, EventStartEnrollment, func(from, to EnrollmentState) error {
			seenFrom, seenTo = from, to
			return boom
		}))

	err := machine.Transition(EventStartEnrollment)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateDraft, seenFrom)
	assert.Equal(t, StateEnrollmentStarted, seenTo)
	assert.Equal(t, StateDraft, machine.CurrentState())
	assert.Empty(t, machine.History())
}

func TestRestoreEnrollmentStateMachine(t *testing.T) {
	history := []TransitionRecord{
		{From: StateDraft, To: StateEnrollmentStarted, Event: EventStartEnrollment},
	}

	machine := RestoreEnrollmentStateMachine(StateEnrollmentStarted, history, FixedClock{})
	history[0].Event = EventCancel

	assert.Equal(t, StateEnrollmentStarted, machine.CurrentState())
	require.Len(t, machine.History(), 1)
	assert.Equal(t, EventStartEnrollment, machine.History()[0].Event)
	assert.True(t, machine.CanTransition(EventProcessPayment))
}
