package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/remeh/sizedwaitgroup"
)

// defaultFanout bounds concurrent deliveries in [Multi].
const defaultFanout = 4

// Multi delivers every message to all of its notifiers concurrently.
type Multi struct {
	notifiers []Notifier
	limit     int
}

// NewMulti creates a [Multi]. Nil notifiers are dropped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{limit: defaultFanout}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// WithLimit sets how many deliveries may run at once. Non-positive values
// are ignored.
func (m *Multi) WithLimit(n int) *Multi {
	if n > 0 {
		m.limit = n
	}
	return m
}

// Len returns the number of notifiers.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notify sends msg through every notifier and waits for all of them. The
// returned error joins every individual failure.
func (m *Multi) Notify(ctx context.Context, msg Message) error {
	if len(m.notifiers) == 0 {
		return ErrNoRecipients
	}

	errs := make([]error, len(m.notifiers))
	swg := sizedwaitgroup.New(m.limit)
	for i, n := range m.notifiers {
		swg.Add()
		go func(i int, n Notifier) {
			defer swg.Done()
			if err := n.Notify(ctx, msg); err != nil {
				errs[i] = fmt.Errorf("notifier %d: %w", i, err)
			}
		}(i, n)
	}
	swg.Wait()

	return errors.Join(errs...)
}
