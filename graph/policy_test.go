package graph

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"
)

func TestComputeBackoff(t *testing.T) {
	t.Run("grows exponentially within jitter bounds", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		base := 10 * time.Millisecond
		maxDelay := time.Second

		for attempt := 0; attempt < 4; attempt++ {
			d := computeBackoff(attempt, base, maxDelay, rng)
			lo := base * (1 << attempt)
			hi := lo + base
			if d < lo || d >= hi {
				t.Errorf("attempt %d: expected delay in [%v, %v), got %v", attempt, lo, hi, d)
			}
		}
	})

	t.Run("caps at max delay", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		d := computeBackoff(10, 2*time.Second, 10*time.Second, rng)
		if d < 10*time.Second || d >= 12*time.Second {
			t.Errorf("expected capped delay in [10s, 12s), got %v", d)
		}
	})

	t.Run("zero base means no delay", func(t *testing.T) {
		if d := computeBackoff(3, 0, time.Second, nil); d != 0 {
			t.Errorf("expected 0, got %v", d)
		}
	})
}

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"valid", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}, false},
		{"single attempt", RetryPolicy{MaxAttempts: 1}, false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, true},
		{"max below base", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Millisecond}, true},
		{"no cap", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrInvalidRetryPolicy) {
				t.Errorf("expected ErrInvalidRetryPolicy, got %v", err)
			}
		})
	}
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	transient := errors.New("transient")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		var calls int32
		var retried []int
		policy := fastPolicy(3)
		policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
		}

		v, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return "", transient
			}
			return "ok", nil
		})
		if err != nil || v != "ok" {
			t.Fatalf("expected ok, got %q (%v)", v, err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
		if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
			t.Errorf("expected OnRetry for attempts 1 and 2, got %v", retried)
		}
	})

	t.Run("exhaustion wraps the last error", func(t *testing.T) {
		var calls int32
		_, err := Retry(ctx, fastPolicy(3), func(ctx context.Context) (int, error) {
			atomic.AddInt32(&calls, 1)
			return 0, transient
		})
		if !errors.Is(err, ErrMaxAttemptsExceeded) || !errors.Is(err, transient) {
			t.Fatalf("expected exhaustion wrapping transient, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected exactly 3 attempts, got %d", calls)
		}
	})

	t.Run("non-retryable errors return immediately", func(t *testing.T) {
		fatal := errors.New("auth")
		policy := fastPolicy(5)
		policy.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

		var calls int32
		_, err := Retry(ctx, policy, func(ctx context.Context) (int, error) {
			atomic.AddInt32(&calls, 1)
			return 0, fatal
		})
		if !errors.Is(err, fatal) || errors.Is(err, ErrMaxAttemptsExceeded) {
			t.Errorf("expected bare fatal error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 attempt, got %d", calls)
		}
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second}

		var calls int32
		_, err := Retry(cctx, policy, func(ctx context.Context) (int, error) {
			atomic.AddInt32(&calls, 1)
			cancel()
			return 0, transient
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 attempt, got %d", calls)
		}
	})

	t.Run("invalid policy", func(t *testing.T) {
		_, err := Retry(ctx, RetryPolicy{}, func(ctx context.Context) (int, error) { return 1, nil })
		if !errors.Is(err, ErrInvalidRetryPolicy) {
			t.Errorf("expected ErrInvalidRetryPolicy, got %v", err)
		}
	})
}
