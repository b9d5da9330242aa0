// Package retry provides retry utilities with exponential backoff and jitter
// for transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	// ErrMaxAttemptsExceeded is returned when max retry attempts are exceeded.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// Jitter perturbs a computed backoff delay. FullJitter is used when nil.
type Jitter func(d time.Duration) time.Duration

// FullJitter returns a random delay in [d/2, d). Spreads out retry storms
// while keeping the delay within the same order of magnitude.
func FullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// NoJitter returns the delay unchanged. Useful in tests.
func NoJitter(d time.Duration) time.Duration { return d }

// Policy configures retry behavior. It is passed by value into the components
// that retry (fetcher, export query phase) rather than applied as a decorator.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the initial one).
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
	// Jitter perturbs each computed delay.
	Jitter Jitter
	// IsRetryable determines whether an error should be retried.
	IsRetryable func(error) bool
}

// DefaultPolicy returns the default retry policy: 3 attempts, 1s initial
// delay, 30s cap, doubling, full jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       FullJitter,
		IsRetryable:  func(error) bool { return true },
	}
}

// normalized returns a copy of the policy with zero values replaced by
// defaults, so a partially-filled Policy literal still behaves.
func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.Jitter == nil {
		p.Jitter = FullJitter
	}
	if p.IsRetryable == nil {
		p.IsRetryable = func(error) bool { return true }
	}
	return p
}

// Delay returns the backoff delay before retry number attempt (1-based),
// after jitter.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return p.Jitter(d)
}

// Do executes fn with retry logic and exponential backoff. Context
// cancellation is honored between attempts; non-retryable errors are
// returned immediately.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !policy.IsRetryable(err) {
			return err
		}

		if attempt < policy.MaxAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-time.After(policy.Delay(attempt)):
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, policy.MaxAttempts, lastErr)
}
