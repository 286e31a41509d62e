package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quill0/quill/internal/log"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestWithRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := withRetry(context.Background(), fastRetryConfig(), nil, log.NewNop(),
		func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("withRetry() unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("withRetry() = %q, want %q", got, "ok")
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestWithRetry_RecoversFromTransient(t *testing.T) {
	calls := 0
	got, err := withRetry(context.Background(), fastRetryConfig(), nil, log.NewNop(),
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("service unavailable")
			}
			return "recovered", nil
		})
	if err != nil {
		t.Fatalf("withRetry() unexpected error: %v", err)
	}
	if got != "recovered" {
		t.Errorf("withRetry() = %q, want %q", got, "recovered")
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestWithRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastRetryConfig(), nil, log.NewNop(),
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("invalid argument: bad payload")
		})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("withRetry() error = %v, want ErrInvalidInput", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1 (no retry on invalid input)", calls)
	}
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	cfg := fastRetryConfig()
	calls := 0
	_, err := withRetry(context.Background(), cfg, nil, log.NewNop(),
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("rate limit exceeded")
		})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("withRetry() error = %v, want ErrRateLimited", err)
	}
	if want := cfg.MaxRetries + 1; calls != want {
		t.Errorf("op called %d times, want %d", calls, want)
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := withRetry(ctx, RetryConfig{MaxRetries: 3, InitialInterval: time.Hour, MaxInterval: time.Hour}, nil, log.NewNop(),
		func(ctx context.Context) (string, error) {
			calls++
			cancel()
			return "", errors.New("503 backend error")
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("withRetry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}
