package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerPassesThrough(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{Name: "test"})

	result, err := breaker.Execute(context.Background(), func() (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, "closed", breaker.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := breaker.Execute(context.Background(), func() (any, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, "open", breaker.State())

	calls := 0
	_, err := breaker.Execute(context.Background(), func() (any, error) {
		calls++
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls, "an open circuit rejects without invoking fn")
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{
		Name:        "test",
		MaxFailures: 1,
		Timeout:     10 * time.Millisecond,
	})

	_, err := breaker.Execute(context.Background(), func() (any, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, "open", breaker.State())

	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		_, err := breaker.Execute(context.Background(), func() (any, error) {
			return nil, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, "closed", breaker.State())
}

func TestBreakerRespectsContext(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{Name: "test"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := breaker.Execute(ctx, func() (any, error) {
		t.Fatal("fn must not run with a canceled context")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
