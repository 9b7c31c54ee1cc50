package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsflow/opsflow/core"
)

func fastRetryConfig(maxAttempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   maxAttempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Contains(t, err.Error(), "always fails")
}

func TestRetrySingleAttemptReturnsRawError(t *testing.T) {
	// With a budget of one there was no retrying, so the caller gets
	// the original error unwrapped.
	cause := errors.New("the one failure")
	err := Retry(context.Background(), fastRetryConfig(1), func() error {
		return cause
	})
	require.Error(t, err)
	assert.Equal(t, cause, err)
	assert.NotErrorIs(t, err, core.ErrMaxRetriesExceeded)
}

func TestRetryPermanentErrorShortCircuits(t *testing.T) {
	config := fastRetryConfig(5)
	config.IsRetryable = func(err error) bool { return !core.IsPermanent(err) }

	calls := 0
	cause := fmt.Errorf("%w: 'ghost'", core.ErrContainerNotFound)
	err := Retry(context.Background(), config, func() error {
		calls++
		return cause
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent failure must abandon remaining attempts")
	assert.ErrorIs(t, err, core.ErrContainerNotFound)
	assert.NotErrorIs(t, err, core.ErrMaxRetriesExceeded)
}

func TestRetryNilClassifierRetriesEverything(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(4), func() error {
		calls++
		return core.ErrContainerNotFound
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastRetryConfig(3), func() error {
		calls++
		return errors.New("never reached")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetryCancellationDuringBackoff(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Hour, // would hang without cancellation
		MaxDelay:      time.Hour,
		BackoffFactor: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, config, func() error {
			calls++
			return errors.New("transient")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not observe cancellation during backoff")
	}
}

func TestRetryNilConfigUsesDefaults(t *testing.T) {
	err := Retry(context.Background(), nil, func() error {
		return nil
	})
	assert.NoError(t, err)
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()
	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, config.InitialDelay)
	assert.Equal(t, 5*time.Second, config.MaxDelay)
	assert.Equal(t, 2.0, config.BackoffFactor)
	assert.True(t, config.JitterEnabled)
}
