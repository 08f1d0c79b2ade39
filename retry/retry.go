// Package retry re-runs an operation that failed with a transient error,
// backing off exponentially and honouring context cancellation.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds the attempts and the pause between them.
type Policy struct {
	MaxAttempts  int           // including the first
	InitialDelay time.Duration // pause after the first failure
	MaxDelay     time.Duration // cap on any single pause
	Multiplier   float64       // growth factor per failure
}

// WriteRetry is a few quick retries, well under the inter-fragment delay.
var WriteRetry = Policy{
	MaxAttempts:  3,
	InitialDelay: 20 * time.Millisecond,
	MaxDelay:     200 * time.Millisecond,
	Multiplier:   2.0,
}

// NoRetry runs the operation once.
var NoRetry = Policy{MaxAttempts: 1}

// IsRetryable decides whether err is transient.
type IsRetryable func(error) bool

// Do runs fn until it succeeds, returns a non-retryable error or the policy
// is exhausted. The last error is wrapped so errors.Is still sees it.
func Do(ctx context.Context, p Policy, isRetryable IsRetryable, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.InitialDelay

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}
		delay = next(delay, p)
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

func next(delay time.Duration, p Policy) time.Duration {
	if p.Multiplier > 0 {
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
