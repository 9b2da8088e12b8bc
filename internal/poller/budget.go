package poller

// RetryBudget bounds the number of poll cycles.
//
// RetryBudget has value semantics so it can live inside the loop state that
// is threaded from one cycle to the next.
type RetryBudget struct {
	remaining int
}

// NewRetryBudget creates a budget allowing max cycles. Negative values are
// treated as zero.
func NewRetryBudget(max int) RetryBudget {
	if max < 0 {
		max = 0
	}
	return RetryBudget{remaining: max}
}

// Consume spends one cycle. It returns false, leaving the budget untouched,
// once no cycles are left.
func (b *RetryBudget) Consume() bool {
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Remaining returns the number of cycles left. Never negative.
func (b RetryBudget) Remaining() int {
	return b.remaining
}
