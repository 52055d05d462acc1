// Package retry provides a reusable retry policy with exponential backoff
// and jitter. Vendor calls and generation tasks share a single policy so
// retry behavior is uniform across the pipeline.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrMaxRetriesExceeded wraps the last error once all attempts are exhausted.
var ErrMaxRetriesExceeded = errors.New("retry: max retries exceeded")

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// MarkRetryable wraps an error so IsRetryable reports true for it.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable returns true if the error was wrapped with MarkRetryable.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Policy defines how an operation is retried: attempt count, backoff curve,
// jitter band and retryability classification.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// An operation runs at most MaxRetries+1 times.
	MaxRetries int
	// BaseDelay is the delay before the first retry. Doubles each attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay before jitter is applied.
	MaxDelay time.Duration
	// Classify reports whether an error is transient and worth retrying.
	// When nil, IsRetryable is used.
	Classify func(error) bool
}

// DefaultPolicy returns the policy used for vendor generation calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, exhausts
// MaxRetries+1 attempts, or the context is cancelled during a backoff wait.
// It returns the number of attempts made alongside the final error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	classify := p.Classify
	if classify == nil {
		classify = IsRetryable
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return attempts, fmt.Errorf("retry: context cancelled: %w", ctx.Err())
			case <-time.After(p.delay(attempt)):
			}
		}

		attempts++
		err := op(ctx)
		if err == nil {
			return attempts, nil
		}

		if !classify(err) {
			return attempts, err
		}

		lastErr = err
	}

	return attempts, fmt.Errorf("%w: %s", ErrMaxRetriesExceeded, lastErr)
}

// delay computes the backoff before the given retry attempt (1-based):
// BaseDelay doubled per attempt, capped at MaxDelay, plus 10-20% random
// jitter to desynchronize concurrent retries against the same endpoint.
func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 1 * time.Second
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	jitter := 0.10 + 0.10*rand.Float64() // #nosec G404 - jitter, not security
	return d + time.Duration(float64(d)*jitter)
}
