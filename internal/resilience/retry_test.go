package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return nil
	}, fastConfig(), nil)

	if err != nil {
		t.Fatalf("Retry() failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastConfig(), nil)

	if err != nil {
		t.Fatalf("Retry() failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("persistent")
	err := Retry(context.Background(), func() error {
		calls++
		return wantErr
	}, fastConfig(), nil)

	if !errors.Is(err, wantErr) {
		t.Errorf("Expected last error %v, got %v", wantErr, err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableStopsEarly(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return errors.New("fatal")
	}, fastConfig(), func(error) bool { return false })

	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Hour,
		MaxBackoff:        time.Hour,
		BackoffMultiplier: 2.0,
	}
	err := Retry(ctx, func() error { return errors.New("transient") }, cfg, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("read tcp: i/o timeout"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		if got := IsRetryableNetworkError(tt.err); got != tt.want {
			t.Errorf("IsRetryableNetworkError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryableError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	wrapped := NewRetryableError(inner)

	if !IsRetryable(wrapped) {
		t.Error("Expected wrapped error to be retryable")
	}
	if !errors.Is(wrapped, inner) {
		t.Error("Expected errors.Is to find inner error")
	}
	if IsRetryable(fmt.Errorf("plain: %w", inner)) {
		t.Error("Plain error should not be retryable")
	}
	if NewRetryableError(nil) != nil {
		t.Error("NewRetryableError(nil) should be nil")
	}
}

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}
