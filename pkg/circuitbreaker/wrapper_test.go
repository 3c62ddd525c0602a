package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sieve/internal/config"
)

func TestFromConfig(t *testing.T) {
	c := FromConfig("repo", config.CircuitBreakerConfig{})
	assert.Equal(t, DefaultConfig("repo").MaxRequests, c.MaxRequests)
	assert.False(t, c.ReadyToTrip(gobreaker.Counts{Requests: 2, TotalFailures: 2}))
	assert.True(t, c.ReadyToTrip(gobreaker.Counts{Requests: 3, TotalFailures: 2}))

	c = FromConfig("repo", config.CircuitBreakerConfig{MaxRequests: 7, Timeout: time.Second, FailureRatio: 0.9, MinRequests: 10})
	assert.Equal(t, uint32(7), c.MaxRequests)
	assert.Equal(t, time.Second, c.Timeout)
	assert.False(t, c.ReadyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 8}))
	assert.True(t, c.ReadyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 9}))
}

func TestExecute(t *testing.T) {
	w := NewWrapper(FromConfig("execute-test", config.CircuitBreakerConfig{MinRequests: 2, FailureRatio: 0.5}))
	ctx := context.Background()

	got, err := Execute(ctx, w, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	boom := errors.New("boom")
	_, err = Execute(ctx, w, func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	require.True(t, w.IsOpen())

	called := false
	_, err = Execute(ctx, w, func() (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestExecute_CancellationIsNotAFailure(t *testing.T) {
	w := NewWrapper(FromConfig("cancel-test", config.CircuitBreakerConfig{MinRequests: 1, FailureRatio: 0.1}))

	_, err := Execute(context.Background(), w, func() (string, error) { return "", context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, w.IsOpen())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Execute(ctx, w, func() (string, error) { return "unreachable", nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint32(1), w.Counts().Requests)
}
