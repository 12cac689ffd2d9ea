// Package backoff provides the bounded-retry primitive shared by the RIS Live
// client (exponential reconnect delays) and the Slack notifier (fixed retry
// delays).
package backoff

import (
	"context"
	"time"
)

// DelayFunc returns the delay to wait before retry attempt n (0-based).
type DelayFunc func(attempt int) time.Duration

// Exponential returns base * 2^min(attempt, capExp).
// The exponent cap bounds the worst-case wait.
func Exponential(base time.Duration, capExp int) DelayFunc {
	return func(attempt int) time.Duration {
		if attempt > capExp {
			attempt = capExp
		}
		return base * time.Duration(1<<uint(attempt))
	}
}

// Fixed returns the same delay for every attempt.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Policy is a bounded retry policy: how many attempts, and how long to wait
// between them.
type Policy struct {
	Attempts int // Maximum attempts; 0 means unlimited.
	Delay    DelayFunc
}

// Exhausted reports whether attempt (0-based, counting completed attempts)
// has used up the budget.
func (p Policy) Exhausted(attempt int) bool {
	return p.Attempts > 0 && attempt >= p.Attempts
}

// Wait sleeps for the delay before retry attempt n. It returns early with the
// context error if ctx is canceled.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry runs fn until it succeeds or the policy's attempts are exhausted.
// It waits the policy delay between attempts (not after the last one) and
// returns the last error on exhaustion, or the context error on cancellation.
func Retry(ctx context.Context, p Policy, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if p.Exhausted(attempt + 1) {
			return lastErr
		}
		if err := p.Wait(ctx, attempt); err != nil {
			return err
		}
	}
}
