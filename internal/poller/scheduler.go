package poller

import (
	"errors"
	"time"
)

// AdaptiveScheduler picks the pause before the next poll cycle.
//
// When any facility offered a date in the cycle just finished, the short
// active interval is used so a freed slot is seen before someone else books
// it. When everything looked fully booked, the long idle interval is used to
// keep request volume down.
type AdaptiveScheduler struct {
	active time.Duration
	idle   time.Duration
}

// NewAdaptiveScheduler creates an [AdaptiveScheduler].
//
// Both intervals must be positive.
func NewAdaptiveScheduler(active, idle time.Duration) (*AdaptiveScheduler, error) {
	if active <= 0 {
		return nil, errors.New("active interval must be positive")
	}
	if idle <= 0 {
		return nil, errors.New("idle interval must be positive")
	}
	return &AdaptiveScheduler{active: active, idle: idle}, nil
}

// NextDelay returns the active interval if anyFound, otherwise the idle one.
func (s *AdaptiveScheduler) NextDelay(anyFound bool) time.Duration {
	if anyFound {
		return s.active
	}
	return s.idle
}

// Active returns the interval used after a cycle that found availability.
func (s *AdaptiveScheduler) Active() time.Duration {
	return s.active
}

// Idle returns the interval used after a cycle that found nothing.
func (s *AdaptiveScheduler) Idle() time.Duration {
	return s.idle
}
