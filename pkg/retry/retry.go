package retry

import (
	"context"
	"time"
)

// Policy describes a bounded retry loop with linear-exponential backoff:
// the first attempt runs immediately, attempt n waits n-1 times the base
// backoff before running.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultPolicy matches the attachment compensation requirements.
var DefaultPolicy = Policy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}

// Normalize fills zero values with the defaults.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultPolicy.Backoff
	}
	return p
}

// Do runs fn until it succeeds, the attempt budget is exhausted, or the
// context is cancelled. It returns the number of attempts made and the last
// error (nil on success).
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	p = p.Normalize()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * p.Backoff
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			}
		}
		if lastErr = fn(ctx); lastErr == nil {
			return attempt, nil
		}
	}
	return p.MaxAttempts, lastErr
}
