package utils

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// RetryConfig holds the parameters of a bounded retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *Logger
}

func (r RetryConfig) normalized() RetryConfig {
	if r.MaxAttempts < 1 {
		r.MaxAttempts = 1
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = 500 * time.Millisecond
	}
	if r.MaxDelay < r.BaseDelay {
		r.MaxDelay = r.BaseDelay * 8
	}
	return r
}

// Retry runs fn with exponential back-off while shouldRetry approves the failure.
// The error returned after the attempts are exhausted is fn's last error, not a wrapper,
// so callers can keep classifying it with errors.As.
func Retry[T any](ctx context.Context, cfg RetryConfig, operationName string, shouldRetry func(T, error) bool, fn func() (T, error)) (T, error) {
	cfg = cfg.normalized()

	builder := retrypolicy.NewBuilder[T]().
		WithMaxRetries(cfg.MaxAttempts-1).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithJitterFactor(0.1).
		HandleIf(func(result T, err error) bool {
			return err != nil && shouldRetry(result, err)
		})
	if cfg.Logger != nil {
		builder = builder.OnRetry(func(e failsafe.ExecutionEvent[T]) {
			cfg.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying",
				operationName, e.Attempts(), cfg.MaxAttempts, e.LastError())
		})
	}

	var lastErr error
	result, err := failsafe.With[T](builder.Build()).WithContext(ctx).Get(func() (T, error) {
		res, err := fn()
		lastErr = err
		return res, err
	})
	if err != nil && lastErr != nil && ctx.Err() == nil {
		return result, lastErr
	}
	return result, err
}
