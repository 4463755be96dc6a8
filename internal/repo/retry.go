package repo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// retryWithBackoff executes fn with exponential backoff retry logic.
// Returns the result of the first successful call, the first permanent error,
// or the last error after maxAttempts. Waiting honours ctx.
func retryWithBackoff[T any](ctx context.Context, maxAttempts int, base time.Duration, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return result, err
		}
		if attempt < maxAttempts {
			// base, 2*base, 4*base, ...
			t := time.NewTimer(base * time.Duration(1<<(attempt-1)))
			select {
			case <-ctx.Done():
				t.Stop()
				return result, ctx.Err()
			case <-t.C:
			}
		}
	}

	return result, fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

func isRetryable(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
