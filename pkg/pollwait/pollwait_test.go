package pollwait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instantClock fires every sleep immediately and counts them.
type instantClock struct {
	sleeps int
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.sleeps++
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// stuckClock never fires, forcing the loop to settle via ctx instead.
type stuckClock struct{}

func (stuckClock) After(d time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, StatePending.Terminal())
	assert.True(t, StateReady.Terminal())
	assert.True(t, StateErrored.Terminal())
	assert.True(t, StateTimedOut.Terminal())
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, SystemClock, cfg.Clock)

	clock := &instantClock{}
	tuned := Config{Interval: time.Second, MaxAttempts: 3, Clock: clock}.withDefaults()
	assert.Equal(t, time.Second, tuned.Interval)
	assert.Equal(t, 3, tuned.MaxAttempts)
	assert.Equal(t, Clock(clock), tuned.Clock)
}

func TestRun_ReadyOnFirstAttempt(t *testing.T) {
	clock := &instantClock{}
	outcome := Run(context.Background(), Config{Clock: clock}, func(ctx context.Context, attempt int) (Verdict, any, error) {
		return VerdictReady, "payload", nil
	})

	assert.Equal(t, StateReady, outcome.State)
	assert.Equal(t, "payload", outcome.Payload)
	assert.Equal(t, 1, outcome.Attempts)
	assert.NoError(t, outcome.Err)
	assert.Zero(t, clock.sleeps, "a first-attempt READY must not wait at all")
	assert.False(t, outcome.SubmittedAt.IsZero())
}

func TestRun_PendingThenReady(t *testing.T) {
	clock := &instantClock{}
	outcome := Run(context.Background(), Config{Clock: clock}, func(ctx context.Context, attempt int) (Verdict, any, error) {
		if attempt < 3 {
			return VerdictPending, nil, nil
		}
		return VerdictReady, attempt, nil
	})

	assert.Equal(t, StateReady, outcome.State)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 3, outcome.Payload)
	assert.Equal(t, 2, clock.sleeps, "one sleep between each pair of attempts")
}

func TestRun_RemoteErrorStopsImmediately(t *testing.T) {
	clock := &instantClock{}
	attempts := 0
	outcome := Run(context.Background(), Config{Clock: clock}, func(ctx context.Context, attempt int) (Verdict, any, error) {
		attempts++
		return VerdictErrored, nil, nil
	})

	assert.Equal(t, StateErrored, outcome.State)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, outcome.Err)
	assert.Zero(t, clock.sleeps)
}

func TestRun_TransportErrorStopsImmediately(t *testing.T) {
	boom := errors.New("connection reset")
	attempts := 0
	outcome := Run(context.Background(), Config{Clock: &instantClock{}}, func(ctx context.Context, attempt int) (Verdict, any, error) {
		attempts++
		return VerdictPending, nil, boom
	})

	assert.Equal(t, StateErrored, outcome.State)
	assert.ErrorIs(t, outcome.Err, boom)
	assert.Equal(t, 1, attempts, "transport failures are terminal, not retried")
}

func TestRun_BudgetExhausted(t *testing.T) {
	clock := &instantClock{}
	outcome := Run(context.Background(), Config{MaxAttempts: 4, Clock: clock}, func(ctx context.Context, attempt int) (Verdict, any, error) {
		return VerdictPending, nil, nil
	})

	assert.Equal(t, StateTimedOut, outcome.State)
	assert.ErrorIs(t, outcome.Err, ErrBudgetExhausted)
	assert.Equal(t, 4, outcome.Attempts)
	assert.Equal(t, 3, clock.sleeps, "the final attempt earns no sleep")
}

func TestRun_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	outcome := Run(ctx, Config{Clock: &instantClock{}}, func(ctx context.Context, attempt int) (Verdict, any, error) {
		called = true
		return VerdictReady, nil, nil
	})

	assert.Equal(t, StateTimedOut, outcome.State)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
	assert.False(t, called)
	assert.Zero(t, outcome.Attempts)
}

func TestRun_CancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	outcome := Run(ctx, Config{Clock: stuckClock{}}, func(ctx context.Context, attempt int) (Verdict, any, error) {
		return VerdictPending, nil, nil
	})

	require.Equal(t, StateTimedOut, outcome.State)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
	assert.Equal(t, 1, outcome.Attempts)
}
