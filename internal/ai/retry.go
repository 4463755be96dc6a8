package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

const (
	// defaultMaxRetries is the default number of attempts per triage
	defaultMaxRetries = 3

	// rateLimitBaseBackoff matches Anthropic's per-minute token windows
	rateLimitBaseBackoff = 60 * time.Second

	rateLimitMaxBackoff = 120 * time.Second
)

// backoffFunc decides how long to wait after a failed attempt.
type backoffFunc func(err error, attempt int) time.Duration

// retryWithBackoff runs fn until it succeeds, fails permanently, runs out of
// attempts or ctx is done.
func retryWithBackoff[T any](ctx context.Context, maxAttempts int, backoff backoffFunc, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}

		lastErr = err
		var p *permanentError
		if errors.As(err, &p) {
			return result, p.err
		}

		if attempt < maxAttempts {
			timer := time.NewTimer(backoff(err, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// permanentError stops the retry loop.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// isRateLimitError checks both the SDK error type and message patterns.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRateLimitErr()
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate_limit_error") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests")
}

// isOverloadedError detects API overload, which is handled like a rate limit.
func isOverloadedError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsOverloadedErr()
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "503")
}

// getBackoffDuration waits 60-120s after rate limit and overload errors and
// 2^n seconds after anything else.
func getBackoffDuration(err error, attempt int) time.Duration {
	if isRateLimitError(err) || isOverloadedError(err) {
		backoff := rateLimitBaseBackoff * time.Duration(attempt)
		if backoff > rateLimitMaxBackoff {
			return rateLimitMaxBackoff
		}
		return backoff
	}

	return time.Duration(1<<attempt) * time.Second
}
