package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	cb := New(Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		Component:        "nws",
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Call(ctx, func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(ctx, func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "fn must not run while open")
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond, Component: "firms"})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Call(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, Component: "nws"})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	_ = cb.Call(ctx, func() error { return nil })
	_ = cb.Call(ctx, func() error { return errBoom })
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CanceledContext(t *testing.T) {
	cb := New(Config{Component: "nws"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Call(ctx, func() error { t.Fatal("fn called with canceled context"); return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestCircuitBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, Component: "firms"})
	ctx := context.Background()
	canceled := fmt.Errorf("request timeout: %w", context.Canceled)

	for i := 0; i < 5; i++ {
		err := cb.Call(ctx, func() error { return canceled })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Call(ctx, func() error { return errBoom })
	_ = cb.Call(ctx, func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())
}
