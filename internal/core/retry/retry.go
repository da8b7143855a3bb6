// Package retry provides a bounded attempts-with-interval policy for long
// external calls (document parsing, provider requests). The sleep function is
// injectable so tests can run the policy against a fake clock.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy retries an operation up to MaxAttempts times, waiting Interval
// between attempts.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration

	// Sleep defaults to a context-aware time.Sleep; tests override it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy returns a Policy with the default context-aware sleep.
func NewPolicy(maxAttempts int, interval time.Duration) *Policy {
	return &Policy{MaxAttempts: maxAttempts, Interval: interval, Sleep: sleepCtx}
}

// Do runs fn until it succeeds, the attempt budget is exhausted, or ctx is
// cancelled. The last error is returned wrapped with the attempt count.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("retry: max attempts must be > 0, got %d", p.MaxAttempts)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt < p.MaxAttempts {
			if err := sleep(ctx, p.Interval); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("retry: gave up after %d attempts: %w", p.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
