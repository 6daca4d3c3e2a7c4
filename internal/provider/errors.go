// Package provider implements the uniform adapter over the LLM backends:
// one invoke contract, one retry/backoff policy, and a fallback chain that
// masks the differing rate-limit and quota behavior of each vendor.
package provider

import (
	"errors"
	"fmt"
	"time"
)

// Error is the base classification for a failed provider call.
type BaseError struct {
	Provider string
	Model    string
	Message  string
}

func (e *BaseError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Provider, e.Model, e.Message)
}

// RateLimitError signals a transient rate limit. Waiting helps: the adapter
// retries with exponential backoff.
type RateLimitError struct {
	BaseError
	RetryAfter time.Duration // zero when the backend gave no hint
}

func (e *RateLimitError) Error() string { return e.BaseError.Error() }

// TransientError signals a server-side transient failure (5xx-class).
// Retried with the same backoff policy as rate limits.
type TransientError struct {
	BaseError
}

func (e *TransientError) Error() string { return e.BaseError.Error() }

// QuotaExhaustedError signals that the account has no remaining allowance.
// Distinct from a rate limit: no amount of waiting helps, so the adapter
// never retries it and instead falls back to the next configured model.
type QuotaExhaustedError struct {
	BaseError
}

func (e *QuotaExhaustedError) Error() string { return e.BaseError.Error() }

// AuthError signals invalid or missing credentials.
type AuthError struct {
	BaseError
}

func (e *AuthError) Error() string { return e.BaseError.Error() }

// IsRetryable reports whether the error should be retried with backoff on
// the same model.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	var tr *TransientError
	return errors.As(err, &rl) || errors.As(err, &tr)
}

// IsQuotaExhausted reports whether the error is a quota exhaustion signal.
func IsQuotaExhausted(err error) bool {
	var qe *QuotaExhaustedError
	return errors.As(err, &qe)
}

// RetryAfterHint extracts a backend-provided retry delay, if any.
func RetryAfterHint(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
