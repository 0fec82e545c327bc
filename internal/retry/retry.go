// Package retry implements the escalating-backoff retry helper used by
// the Installer, the Supervisor's restart policy, and the Tunnel Adapter.
// Generalized from the cluster-API retry wrapper this project's ambient
// stack carries forward: a capped exponential backoff respecting
// context cancellation.
package retry

import (
	"context"
	"time"
)

// Policy describes an escalating backoff schedule.
type Policy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	MaxAttempts int // 0 means unbounded (caller supplies its own ceiling)
}

// DefaultPolicy escalates 2s, 5s, 12.5s, then stays capped at 15s for
// every later attempt.
var DefaultPolicy = Policy{
	Initial:     2 * time.Second,
	Multiplier:  2.5,
	Max:         15 * time.Second,
	MaxAttempts: 0,
}

// Backoff returns the delay before the given attempt number (1-indexed).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Initial)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.Max) {
			return p.Max
		}
	}
	if time.Duration(d) > p.Max {
		return p.Max
	}
	return time.Duration(d)
}

// IsRetryableFunc classifies whether an error should be retried.
type IsRetryableFunc func(error) bool

// Do runs fn, retrying per the policy while isRetryable(err) and the
// attempt ceiling (if any) is not exceeded. It honors ctx cancellation
// between attempts.
func Do(ctx context.Context, p Policy, isRetryable IsRetryableFunc, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff(attempt)):
		}
	}
}
