package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass error
	}{
		{"rate limit phrase", errors.New("googleai: rate limit exceeded"), ErrRateLimited},
		{"quota phrase", errors.New("Quota Exceeded for project"), ErrRateLimited},
		{"http 429", errors.New("unexpected status 429"), ErrRateLimited},
		{"deadline exceeded wrapped", fmt.Errorf("embed: %w", context.DeadlineExceeded), ErrTimeout},
		{"timeout phrase", errors.New("request timed out"), ErrTimeout},
		{"invalid argument", errors.New("rpc error: InvalidArgument: bad request"), ErrInvalidInput},
		{"http 500", errors.New("server returned 500"), ErrServerError},
		{"unavailable", errors.New("service Unavailable, try later"), ErrServerError},
		{"connection reset", errors.New("read tcp: connection reset by peer"), ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if !errors.Is(got, tt.wantClass) {
				t.Errorf("Classify(%v) = %v, want class %v", tt.err, got, tt.wantClass)
			}
			if !errors.Is(got, tt.err) && !errors.Is(tt.err, context.DeadlineExceeded) {
				t.Errorf("Classify(%v) lost the original error", tt.err)
			}
		})
	}
}

func TestClassify_Unrecognized(t *testing.T) {
	orig := errors.New("something novel happened")
	got := Classify(orig)
	if got != orig {
		t.Errorf("Classify() = %v, want original error unchanged", got)
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", fmt.Errorf("call: %w", ErrRateLimited), true},
		{"timeout", fmt.Errorf("call: %w", ErrTimeout), true},
		{"server error", fmt.Errorf("call: %w", ErrServerError), true},
		{"invalid input", fmt.Errorf("call: %w", ErrInvalidInput), false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
