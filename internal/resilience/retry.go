package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// BackoffFunc returns the delay to wait after the given failed attempt
// (1-based).
type BackoffFunc func(attempt int) time.Duration

// RetryConfig controls how DoVal retries a failing call.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first one.
	// Default: 3.
	MaxAttempts int

	// Backoff computes the wait between attempts. Default: LinearBackoff(time.Second).
	Backoff BackoffFunc

	// ShouldRetry overrides the transient-error check. Nil means IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// LinearBackoff waits attempt x step: 1s, 2s, 3s for a one second step.
func LinearBackoff(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// ExponentialBackoff waits initial x multiplier^(attempt-1), capped at max,
// with +/- jitter applied as a fraction of the delay.
func ExponentialBackoff(initial, max time.Duration, multiplier, jitter float64) BackoffFunc {
	return func(attempt int) time.Duration {
		delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
		if delay > float64(max) {
			delay = float64(max)
		}
		if jitter > 0 {
			delay += (rand.Float64()*2 - 1) * delay * jitter
		}
		if delay < 0 {
			delay = 0
		}
		return time.Duration(delay)
	}
}

// DefaultRetryConfig matches the search API client: three attempts, waiting
// one then two seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Second),
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is done.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = LinearBackoff(time.Second)
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) || attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(cfg.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
