package service

import (
	"context"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
)

// RetryPolicy bounds retries of calls to external services.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Retryable decides whether an error deserves another attempt.
	// Nil means apperr.IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy is three attempts starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// RetryWithBackoff runs operation until it succeeds, returns a non-retryable error,
// or MaxAttempts is reached. The delay doubles after every failed attempt.
// Returns the error from the last attempt, or ctx.Err() if the context ends first.
func RetryWithBackoff(ctx context.Context, policy RetryPolicy, operation func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		return apperr.New(apperr.ErrInvalidConfiguration, "retry attempts must be positive, got %d", policy.MaxAttempts)
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = apperr.IsRetryable
	}

	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == policy.MaxAttempts {
			break
		}

		logger.With(logger.Fields{logger.FieldAttempt: attempt}).
			Debug(ctx, "Retrying after error: %v", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return lastErr
}
