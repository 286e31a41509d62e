package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig configures the retry behavior for embedding and generation calls.
// All other pipeline calls degrade immediately instead of retrying.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// withRetry executes op with exponential backoff on transient errors.
// Each attempt waits on the rate limiter first, so retries cannot stampede
// an already rate-limited upstream. Errors are classified before the retry
// decision; the classified error is what the caller receives.
func withRetry[T any](ctx context.Context, cfg RetryConfig, limiter *rate.Limiter,
	logger *slog.Logger, op func(context.Context) (T, error)) (T, error) {

	var zero T
	var lastErr error
	delay := cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return zero, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Debug("call succeeded after retry",
					"attempts", attempt+1,
					"elapsed", time.Since(start))
			}
			return result, nil
		}

		lastErr = Classify(err)

		if !Retryable(lastErr) {
			return zero, lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}

		logger.Debug("retrying after transient error",
			"attempt", attempt+1,
			"delay", delay,
			"error", lastErr)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return zero, fmt.Errorf("after %d retries (elapsed %v): %w",
		cfg.MaxRetries, time.Since(start), lastErr)
}
