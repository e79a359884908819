package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond}
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(3), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return apperr.New(apperr.ErrRateLimited, "slow down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_StopsAfterMaxAttempts(t *testing.T) {
	attempts := 0
	want := apperr.New(apperr.ErrTransientExternal, "503")
	err := RetryWithBackoff(context.Background(), fastPolicy(3), func(context.Context) error {
		attempts++
		return want
	})
	assert.Equal(t, want, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_PermanentErrorIsNotRetried(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(5), func(context.Context) error {
		attempts++
		return apperr.New(apperr.ErrInvalidInput, "bad text")
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_CustomPredicate(t *testing.T) {
	attempts := 0
	policy := fastPolicy(2)
	policy.Retryable = func(error) bool { return true }
	_ = RetryWithBackoff(context.Background(), policy, func(context.Context) error {
		attempts++
		return errors.New("anything")
	})
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}, func(context.Context) error {
		attempts++
		cancel()
		return apperr.New(apperr.ErrTimeout, "timeout")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_InvalidAttempts(t *testing.T) {
	err := RetryWithBackoff(context.Background(), RetryPolicy{}, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, apperr.ErrInvalidConfiguration)
}
