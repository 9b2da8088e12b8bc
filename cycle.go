package visaslot

import (
	"time"

	"github.com/jpalmerr/visaslot/internal/poller"
)

// State is a position in the watch loop's state machine.
type State string

const (
	StateIdle       State = "idle"
	StateLoggingIn  State = "logging_in"
	StateScanning   State = "scanning"
	StateScheduling State = "scheduling"
	StateSleeping   State = "sleeping"
	StateTerminated State = "terminated"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// PollCycle is the loop state carried from one cycle to the next by
// [Watcher.RunCycle].
type PollCycle struct {
	// Number is the 1-based index of the last cycle started, zero before
	// the first.
	Number int

	// Delay is the wait before the next cycle. It holds the initial delay
	// until the first cycle has been scheduled.
	Delay time.Duration

	// AnyFound reports whether the last cycle saw at least one slot.
	AnyFound bool

	// State is where the loop stopped.
	State State

	budget poller.RetryBudget
}

// NewPollCycle creates the starting loop state allowing maxCycles cycles.
func NewPollCycle(maxCycles int, initialDelay time.Duration) PollCycle {
	return PollCycle{
		Delay:  initialDelay,
		State:  StateIdle,
		budget: poller.NewRetryBudget(maxCycles),
	}
}

// Remaining returns how many cycles may still start.
func (c PollCycle) Remaining() int {
	return c.budget.Remaining()
}

// Terminated reports whether the loop has stopped.
func (c PollCycle) Terminated() bool {
	return c.State == StateTerminated
}

// CycleReport summarizes one completed cycle.
type CycleReport struct {
	// ID correlates the cycle's log lines.
	ID string

	// Number is the cycle index.
	Number int

	// Results holds one entry per facility scanned, in scan order.
	Results []ScanResult

	// AnyFound reports whether any facility offered a slot.
	AnyFound bool

	// Notified counts notifications handed to the notifier.
	Notified int

	// NotifyErrors counts notifications that failed.
	NotifyErrors int

	// Delay is the wait chosen before the next cycle.
	Delay time.Duration

	// Remaining is the number of cycles left after this one.
	Remaining int

	StartedAt  time.Time
	FinishedAt time.Time
}
