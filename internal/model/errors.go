package model

import (
	"context"
	"errors"
	"strings"
)

// Error classes for model-boundary failures. Each upstream failure is mapped
// onto exactly one of these so callers can drive degrade policies with
// errors.Is() instead of string matching.
var (
	// ErrRateLimited indicates the upstream rejected the call for quota reasons.
	ErrRateLimited = errors.New("model: rate limited")

	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("model: timeout")

	// ErrInvalidInput indicates the request itself was malformed (not retryable).
	ErrInvalidInput = errors.New("model: invalid input")

	// ErrServerError indicates a transient upstream server failure.
	ErrServerError = errors.New("model: server error")
)

// classifyPatterns maps error substrings to error classes.
// Matched case-insensitively against err.Error().
//
// NOTE: string matching is used because Genkit and the provider SDKs do not
// expose typed errors for these failures. Re-evaluate if Genkit adds
// structured error types in a future version.
var classifyPatterns = []struct {
	class    error
	patterns []string
}{
	{ErrRateLimited, []string{"rate limit", "quota exceeded", "resource exhausted", "429"}},
	{ErrTimeout, []string{"deadline exceeded", "timeout", "timed out"}},
	{ErrInvalidInput, []string{"invalid argument", "invalid input", "400"}},
	{ErrServerError, []string{"500", "502", "503", "504", "unavailable", "internal error", "connection reset"}},
}

// Classify wraps err with the matching error class so callers can use
// errors.Is(err, model.ErrRateLimited) etc. Unrecognized errors are returned
// unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	for _, group := range classifyPatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return errors.Join(group.class, err)
			}
		}
	}
	return err
}

// Retryable reports whether err is transient and worth retrying.
// Only rate limiting, timeouts, and server errors qualify; invalid input
// never does.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServerError)
}
