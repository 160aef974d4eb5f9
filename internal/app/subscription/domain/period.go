package domain

import (
	"fmt"
	"time"
)

// SubscriptionPeriod is the coverage window of a subscription. The window is
// half-open: coverage starts at Start and ends right before End.
type SubscriptionPeriod struct {
	start time.Time
	end   time.Time
}

func NewSubscriptionPeriod(start, end time.Time) (SubscriptionPeriod, error) {
	if !start.Before(end) {
		return SubscriptionPeriod{}, fmt.Errorf("%w: %s >= %s", ErrInvalidPeriod,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return SubscriptionPeriod{start: start, end: end}, nil
}

func (p SubscriptionPeriod) Start() time.Time {
	return p.start
}

func (p SubscriptionPeriod) End() time.Time {
	return p.end
}

// IsActive reports whether at falls inside the coverage window.
func (p SubscriptionPeriod) IsActive(at time.Time) bool {
	return !at.Before(p.start) && at.Before(p.end)
}

func (p SubscriptionPeriod) IsExpired(at time.Time) bool {
	return !at.Before(p.end)
}

func (p SubscriptionPeriod) IsPending(at time.Time) bool {
	return at.Before(p.start)
}

func (p SubscriptionPeriod) Duration() time.Duration {
	return p.end.Sub(p.start)
}

func (p SubscriptionPeriod) IsZero() bool {
	return p.start.IsZero() && p.end.IsZero()
}
