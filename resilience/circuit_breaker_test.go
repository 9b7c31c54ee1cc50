package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsflow/opsflow/core"
)

func testBreaker(threshold int, sleep time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: threshold,
		SleepWindow:      sleep,
		HalfOpenRequests: 2,
	}, nil)
}

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := testBreaker(3, time.Minute)
	assert.Equal(t, "closed", cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := testBreaker(3, time.Minute)
	ctx := context.Background()
	failure := errors.New("backend down")

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func() error { return failure })
		require.ErrorIs(t, err, failure)
	}

	assert.Equal(t, "open", cb.GetState())
	err := cb.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, core.ErrCircuitBreakerOpen)
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := testBreaker(3, time.Minute)
	ctx := context.Background()
	failure := errors.New("flaky")

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return failure })
	}
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))

	// Two more failures do not open the circuit: the streak restarted.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return failure })
	}
	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreakerHalfOpenAfterSleepWindow(t *testing.T) {
	cb := testBreaker(1, 10*time.Millisecond)
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("boom") })
	require.Equal(t, "open", cb.GetState())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, cb.CanExecute())
	assert.Equal(t, "half-open", cb.GetState())
}

func TestCircuitBreakerClosesAfterHalfOpenSuccesses(t *testing.T) {
	cb := testBreaker(1, 10*time.Millisecond)
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	// HalfOpenRequests is 2: two successes close the circuit.
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := testBreaker(1, 10*time.Millisecond)
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(ctx, func() error { return errors.New("still down") })
	assert.Equal(t, "open", cb.GetState())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := testBreaker(1, time.Hour)
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errors.New("boom") })
	require.Equal(t, "open", cb.GetState())

	cb.Reset()
	assert.Equal(t, "closed", cb.GetState())
	assert.NoError(t, cb.Execute(ctx, func() error { return nil }))
}

func TestCircuitBreakerCancelledContext(t *testing.T) {
	cb := testBreaker(3, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestCircuitBreakerConfigDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "defaults"}, nil)
	assert.Equal(t, 5, cb.config.FailureThreshold)
	assert.Equal(t, 30*time.Second, cb.config.SleepWindow)
	assert.Equal(t, 3, cb.config.HalfOpenRequests)
}

func TestCircuitBreakerImplementsCoreInterface(t *testing.T) {
	var _ core.CircuitBreaker = testBreaker(1, time.Second)
}
