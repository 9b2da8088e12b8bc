package poller

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound requests with a token bucket so a scan cycle never
// bursts against the booking site.
//
// A nil *Pacer never blocks.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a [Pacer] allowing rps requests per second with the given
// burst. A non-positive rps disables pacing.
func NewPacer(rps float64, burst int) *Pacer {
	if rps <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may proceed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
