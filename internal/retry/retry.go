// Package retry provides the bounded retry policy used around remote calls.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/joebot/voxbrief/internal/fault"
)

// Policy retries a call while the error is retryable, up to MaxAttempts total
// attempts. The wait before attempt n (n >= 2) is Backoff * (n-1).
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to fault.IsRetryable.
	Retryable func(error) bool
	// OnRetry is called before each retry, e.g. to count retries.
	OnRetry func(attempt int, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// Once returns the policy mandated for remote calls: one retry, linear backoff.
func Once(backoff time.Duration) Policy {
	return Policy{MaxAttempts: 2, Backoff: backoff}
}

// Delay returns the wait before the given attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return p.Backoff * time.Duration(attempt-1)
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// It returns the number of attempts made alongside the last error.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = fault.IsRetryable
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if p.OnRetry != nil {
				p.OnRetry(attempt, err)
			}
			slog.Warn("retrying", "op", op, "attempt", attempt, "err", err)
			if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
				return attempt - 1, err
			}
		}
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if !retryable(err) {
			return attempt, err
		}
	}
	return attempts, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
