package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the backoff used by [Retry].
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first. Default 3.
	MaxRetries uint64

	// InitialInterval is the first wait. Default 1s.
	InitialInterval time.Duration

	// MaxInterval caps any single wait. Default 30s.
	MaxInterval time.Duration
}

// Retry retries a notifier with exponential backoff. Errors wrapped with
// [Permanent] are not retried.
type Retry struct {
	next Notifier
	cfg  RetryConfig
}

// NewRetry wraps next.
func NewRetry(next Notifier, cfg RetryConfig) *Retry {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	return &Retry{next: next, cfg: cfg}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Notify delivers msg, retrying failures until the budget or ctx runs out.
// The last error is returned.
func (r *Retry) Notify(ctx context.Context, msg Message) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.cfg.InitialInterval
	exp.MaxInterval = r.cfg.MaxInterval
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, r.cfg.MaxRetries), ctx)

	return backoff.Retry(func() error {
		return r.next.Notify(ctx, msg)
	}, policy)
}
