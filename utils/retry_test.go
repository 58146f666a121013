package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

func retryAll(_ int, err error) bool { return errors.Is(err, errTransient) }

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Logger: NewNopLogger()}
	calls := 0

	got, err := Retry(context.Background(), cfg, "op", retryAll, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || calls != 3 {
		t.Errorf("got %d after %d calls; want 42 after 3", got, calls)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond}
	calls := 0

	_, err := Retry(context.Background(), cfg, "op", retryAll, func() (int, error) {
		calls++
		return 0, errPermanent
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("got %v; want permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestRetryReturnsLastErrorWhenExhausted(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}
	calls := 0

	_, err := Retry(context.Background(), cfg, "op", retryAll, func() (int, error) {
		calls++
		return 0, errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("got %v; want transient error", err)
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
}
