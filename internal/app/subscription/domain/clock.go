package domain

import "time"

// Clock provides an abstraction for time operations
type Clock interface {
	Now() time.Time
}

// RealClock is the production implementation of Clock
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is used for testing with deterministic time
type FixedClock struct {
	FixedTime time.Time
}

func (f FixedClock) Now() time.Time {
	return f.FixedTime
}

func clockOrDefault(clock Clock) Clock {
	if clock == nil {
		return RealClock{}
	}
	return clock
}
