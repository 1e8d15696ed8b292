package graph

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// NodePolicy configures the execution behavior of a single node.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for this node.
	// If zero, the engine's default node timeout is used.
	Timeout time.Duration
}

// RetryPolicy defines automatic retry configuration for transient failures.
//
// Exponential backoff with jitter is used between attempts so that parallel
// workers hitting the same rate-limited service do not retry in lockstep.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts including the first one.
	// Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between retries.
	// The actual delay is min(BaseDelay * 2^attempt, MaxDelay) + jitter.
	BaseDelay time.Duration

	// MaxDelay caps the exponential component. Zero means no cap.
	MaxDelay time.Duration

	// Retryable reports whether an error is worth another attempt.
	// If nil, every error is retried.
	Retryable func(error) bool

	// OnRetry, if set, is called before sleeping ahead of attempt+1.
	// Useful for metrics and logging.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// computeBackoff calculates the delay before the given zero-based retry.
//
//	delay = min(base * 2^attempt, maxDelay) + jitter(0, base)
//
// Example delays with base=2s, maxDelay=10s:
//   - attempt 0: 2-4s
//   - attempt 1: 4-6s
//   - attempt 2: 8-10s
//   - attempt 3: 10-12s (capped)
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}

	exponentialDelay := base * (1 << attempt)
	if maxDelay > 0 && (exponentialDelay > maxDelay || exponentialDelay <= 0) {
		exponentialDelay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}

	return exponentialDelay + jitter
}

// Validate checks if the RetryPolicy configuration is valid:
//   - MaxAttempts must be >= 1
//   - if both MaxDelay and BaseDelay are > 0, MaxDelay must be >= BaseDelay
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// Retry runs op until it succeeds, returns a non-retryable error, the
// context is done, or the policy's attempts are exhausted.
//
// When attempts are exhausted the returned error wraps both
// ErrMaxAttemptsExceeded and the last error returned by op, so callers can
// still classify the underlying failure with errors.Is / errors.As.
//
// Example:
//
//	papers, err := graph.Retry(ctx, policy, func(ctx context.Context) ([]Paper, error) {
//	    return client.Search(ctx, query, 10)
//	})
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := policy.Validate(); err != nil {
		return zero, err
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if policy.Retryable != nil && !policy.Retryable(err) {
			return zero, err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := computeBackoff(attempt, policy.BaseDelay, policy.MaxDelay, nil)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, policy.MaxAttempts, lastErr)
}
