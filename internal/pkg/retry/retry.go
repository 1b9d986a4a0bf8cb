// Package retry runs an operation with exponential backoff.
//
// Each attempt receives its own context. When Config.AttemptTimeout is set the
// attempt context carries that deadline, so a stalled endpoint costs at most
// AttemptTimeout per attempt instead of the whole parent deadline.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the number of retries after the first attempt (0 means a single attempt).
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth of the wait.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the wait after each retry (default: 2.0).
	BackoffFactor float64

	// AttemptTimeout bounds a single attempt. Zero leaves attempts bounded only by the parent context.
	AttemptTimeout time.Duration

	// Jitter adds rand(0, backoff) to every wait.
	Jitter bool
}

// DefaultConfig returns the configuration used for contract reads.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// IsRetryableFunc determines if an error should trigger a retry.
type IsRetryableFunc func(error) bool

// OnRetryFunc is called before each retry. attempt is 1-indexed.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// ErrExhausted is wrapped by the error returned when every attempt failed with a retryable error.
var ErrExhausted = errors.New("retries exhausted")

// Do calls fn until it succeeds, returns a non-retryable error, or the retries run out.
//
//	votes, err := retry.Do(ctx, cfg, isTransient, nil, func(ctx context.Context) (*big.Int, error) {
//	    return readCounter(ctx)
//	})
func Do[T any](
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	var lastErr error

	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 50 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 500 * time.Millisecond
	}
	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}

	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if cfg.Jitter {
				wait += time.Duration(rand.Int63n(int64(backoff)))
			}

			if onRetry != nil {
				onRetry(attempt, lastErr, wait)
			}

			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("context cancelled while retrying: %w", errors.Join(ctx.Err(), lastErr))
			case <-time.After(wait):
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		result, err := runAttempt(ctx, cfg.AttemptTimeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// The parent context is gone; another attempt cannot succeed.
		if ctx.Err() != nil {
			return zero, err
		}
		if !isRetryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d retries: %w", ErrExhausted, cfg.MaxRetries, lastErr)
}

// DoVoid is Do for operations without a result.
func DoVoid(
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func(ctx context.Context) error,
) error {
	_, err := Do(ctx, cfg, isRetryable, onRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
