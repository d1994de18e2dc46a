package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds how raster backend calls are retried. Backoff starts at
// BaseBackoff, doubles each retry, and is capped at MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy retries four times from 200ms up to 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseBackoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

// retrier runs backend calls under a RetryPolicy and records metrics.
type retrier struct {
	policy RetryPolicy
	clock  clockwork.Clock
	onTry  func(op string, err error, elapsed time.Duration)
	onWait func(op string)
}

// do calls fn until it succeeds, fails permanently, or the attempts run out.
// Exhausted attempts surface as a BackendUnavailableError wrapping the last
// failure. Permanent failures and cancellation are returned unchanged.
func (r *retrier) do(ctx context.Context, op string, variable domain.Variable, fn func(context.Context) error) error {
	attempts := max(r.policy.MaxAttempts, 1)
	backoff := r.policy.BaseBackoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := r.clock.Now()
		err = fn(ctx)
		if r.onTry != nil {
			r.onTry(op, err, r.clock.Since(start))
		}
		if err == nil {
			return nil
		}
		if !retryable(ctx, err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if r.onWait != nil {
			r.onWait(op)
		}
		if !sleepWithContext(ctx, r.clock, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, r.policy.MaxBackoff)
	}
	return &domain.BackendUnavailableError{Op: op, Variable: variable, Attempts: attempts, Err: err}
}

// retryable reports whether err is worth another attempt.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, permanent := range []error{
		domain.ErrRejected,
		domain.ErrUnknownVariable,
		domain.ErrUnknownBand,
		domain.ErrGridMismatch,
		domain.ErrInvalidGeometry,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
