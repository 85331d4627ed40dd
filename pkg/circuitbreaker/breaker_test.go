package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func newTestBreaker(clock *time.Time, transitions *[]string) *CircuitBreaker {
	cb := NewCircuitBreaker("test", Config{
		MaxRequests:      1,
		Timeout:          time.Second,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OnStateChange: func(name string, from, to State) {
			*transitions = append(*transitions, from.String()+"->"+to.String())
		},
	})
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	require := require.New(t)
	clock := time.Unix(1000, 0)
	var transitions []string
	cb := newTestBreaker(&clock, &transitions)
	ctx := context.Background()

	fail := func() error { return errBackend }
	ok := func() error { return nil }

	require.ErrorIs(cb.Execute(ctx, fail), errBackend)
	require.ErrorIs(cb.Execute(ctx, fail), errBackend)
	require.Equal(StateOpen, cb.State())

	err := cb.Execute(ctx, ok)
	require.ErrorIs(err, ErrCircuitOpen)
	require.True(IsBreakerError(err))

	clock = clock.Add(2 * time.Second)
	require.Equal(StateHalfOpen, cb.State())

	require.NoError(cb.Execute(ctx, ok))
	require.Equal(StateClosed, cb.State())
	require.Equal([]string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCancelledCallsDoNotTrip(t *testing.T) {
	clock := time.Unix(1000, 0)
	var transitions []string
	cb := newTestBreaker(&clock, &transitions)

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error { return context.Canceled })
	}
	require.Equal(t, StateClosed, cb.State())
	require.Empty(t, transitions)
}

func TestExecuteSkipsDoneContext(t *testing.T) {
	cb := NewCircuitBreaker("ctx", Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
	require.Equal(t, "ctx", cb.Name())
}
