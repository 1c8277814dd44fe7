package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsse/inscribememaybe/internal/chain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// instantSleep records scheduled delays instead of waiting them out.
func instantSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestPolicy_DoSucceedsFirstTry(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := Policy{SleepFn: instantSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), testLogger(), "probe", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestPolicy_DoRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := Policy{SleepFn: instantSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), testLogger(), "submit", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("flaky"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, delays)
}

func TestPolicy_DoTerminalStopsImmediately(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := Policy{SleepFn: instantSleep(&delays)}

	rejection := &chain.RejectedError{Code: -32000, Message: "insufficient funds"}
	calls := 0
	err := policy.Do(context.Background(), testLogger(), "submit", func(ctx context.Context) error {
		calls++
		return rejection
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
	assert.Contains(t, err.Error(), "terminal_failure stage=submit attempt=1 reason=tx_rejected")

	var rejected *chain.RejectedError
	require.ErrorAs(t, err, &rejected, "the cause stays reachable through the wrap")
}

func TestPolicy_DoExhaustsBudget(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := Policy{MaxAttempts: 3, SleepFn: instantSleep(&delays)}

	cause := errors.New("flaky")
	calls := 0
	err := policy.Do(context.Background(), testLogger(), "submit", func(ctx context.Context) error {
		calls++
		return Transient(cause)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2, "no backoff after the final attempt")

	require.True(t, IsExhausted(err))
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "submit", exhausted.Stage)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, "explicit_transient", exhausted.Reason)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "transient_recovery_exhausted stage=submit attempts=3 reason=explicit_transient")
}

func TestPolicy_DoDefaultsToFiveAttempts(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := Policy{SleepFn: instantSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), testLogger(), "submit", func(ctx context.Context) error {
		calls++
		return Transient(errors.New("flaky"))
	})

	require.True(t, IsExhausted(err))
	assert.Equal(t, DefaultMaxAttempts, calls)
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		8 * time.Second,
	}, delays)
}

func TestPolicy_DoReturnsContextErrorAfterCanceledAttempt(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{SleepFn: func(ctx context.Context, d time.Duration) error {
		t.Fatal("must not back off once the context is gone")
		return nil
	}}

	calls := 0
	err := policy.Do(ctx, testLogger(), "submit", func(ctx context.Context) error {
		calls++
		cancel()
		return Transient(errors.New("flaky"))
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.NotContains(t, err.Error(), "terminal_failure")
}

func TestPolicy_DoHonorsCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{SleepFn: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}}

	calls := 0
	err := policy.Do(ctx, testLogger(), "submit", func(ctx context.Context) error {
		calls++
		return Transient(errors.New("flaky"))
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation during backoff stops further attempts")
}

func TestPolicy_OnRetryObservesSchedule(t *testing.T) {
	t.Parallel()

	type retryEvent struct {
		stage   string
		attempt int
		delay   time.Duration
	}

	var events []retryEvent
	var delays []time.Duration
	policy := Policy{
		MaxAttempts: 3,
		SleepFn:     instantSleep(&delays),
		OnRetry: func(stage string, attempt int, delay time.Duration) {
			events = append(events, retryEvent{stage: stage, attempt: attempt, delay: delay})
		},
	}

	err := policy.Do(context.Background(), testLogger(), "quote", func(ctx context.Context) error {
		return Transient(errors.New("flaky"))
	})

	require.True(t, IsExhausted(err))
	require.Len(t, events, 2)
	assert.Equal(t, retryEvent{stage: "quote", attempt: 1, delay: 500 * time.Millisecond}, events[0])
	assert.Equal(t, retryEvent{stage: "quote", attempt: 2, delay: time.Second}, events[1])
}

func TestPolicy_Delay(t *testing.T) {
	t.Parallel()

	t.Run("default schedule jumps to max", func(t *testing.T) {
		t.Parallel()

		policy := Policy{}
		want := []time.Duration{
			500 * time.Millisecond,
			time.Second,
			2 * time.Second,
			8 * time.Second,
			8 * time.Second,
		}
		for attempt, wantDelay := range want {
			assert.Equalf(t, wantDelay, policy.Delay(attempt+1), "attempt %d", attempt+1)
		}
	})

	t.Run("custom bounds", func(t *testing.T) {
		t.Parallel()

		policy := Policy{BackoffInitial: time.Second, BackoffMax: 4 * time.Second}
		assert.Equal(t, time.Second, policy.Delay(1))
		assert.Equal(t, 4*time.Second, policy.Delay(2))
		assert.Equal(t, 4*time.Second, policy.Delay(3))
	})

	t.Run("initial above max is clamped", func(t *testing.T) {
		t.Parallel()

		policy := Policy{BackoffInitial: 10 * time.Second, BackoffMax: 2 * time.Second}
		assert.Equal(t, 2*time.Second, policy.Delay(1))
	})
}
