package repository

import (
	"context"
	"errors"
	"testing"
)

// timeoutErr implements net.Error with Timeout() == true.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestWithRetryTransient(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "test.op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return timeoutErr{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryExhausted(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "test.op", func(ctx context.Context) error {
		attempts++
		return timeoutErr{}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != retryMaxAttempts {
		t.Errorf("expected %d attempts, got %d", retryMaxAttempts, attempts)
	}
}

func TestWithRetryPermanentError(t *testing.T) {
	permanent := errors.New("validation failed")
	attempts := 0
	err := withRetry(context.Background(), "test.op", func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("permanent errors must not be retried, got %d attempts", attempts)
	}
}

func TestWithRetryNotFound(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "test.op", func(ctx context.Context) error {
		attempts++
		return ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("not-found must not be retried, got %d attempts", attempts)
	}
}
