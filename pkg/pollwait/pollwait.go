// Package pollwait implements the bounded submit/poll/backoff state machine
// used by providers whose work happens asynchronously server-side.
//
// A poll job moves Pending -> Ready | Errored | TimedOut and every terminal
// state is final. The loop never retries past its attempt budget, treats a
// transport error on any attempt as an immediate Errored transition, and
// sleeps through an injectable Clock so it composes with context
// cancellation and with synthetic time in tests.
package pollwait

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle state of a poll job.
type State string

const (
	StatePending  State = "pending"
	StateReady    State = "ready"
	StateErrored  State = "errored"
	StateTimedOut State = "timed_out"
)

// Terminal reports whether the state ends the poll loop.
func (s State) Terminal() bool {
	return s == StateReady || s == StateErrored || s == StateTimedOut
}

// Verdict is what one poll attempt says about the remote job.
type Verdict int

const (
	// VerdictPending means the remote job is still running; sleep and retry.
	VerdictPending Verdict = iota

	// VerdictReady means the remote job finished and the payload is final.
	// Cached provider results land here on the first attempt, with no wait.
	VerdictReady

	// VerdictErrored means the remote side reported a terminal error or an
	// unsupported target class; the loop stops immediately.
	VerdictErrored
)

// PollFunc performs a single poll attempt. attempt starts at 1. A non-nil
// error marks a transport failure and ends the loop in Errored without
// another attempt; remote-side states are reported through the Verdict.
type PollFunc func(ctx context.Context, attempt int) (Verdict, any, error)

// Clock abstracts the wait between attempts so tests can advance time
// synthetically.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall-clock implementation used outside tests.
var SystemClock Clock = realClock{}

const (
	// DefaultInterval is the fixed sleep between poll attempts.
	DefaultInterval = 15 * time.Second

	// DefaultMaxAttempts bounds the loop to a ceiling of a few minutes.
	DefaultMaxAttempts = 10
)

// Config bounds one poll loop. Zero values fall back to the defaults.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
	Clock       Clock
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	return c
}

// Outcome is the settled result of a poll loop, the only thing a caller ever
// sees. The job bookkeeping behind it is discarded once the outcome is
// returned; nothing persists across loops.
type Outcome struct {
	State       State
	Payload     any
	Attempts    int
	SubmittedAt time.Time
	Err         error
}

// ErrBudgetExhausted marks a loop that stayed Pending through its entire
// attempt budget.
var ErrBudgetExhausted = errors.New("poll attempt budget exhausted")

// Run drives fn through the state machine until a terminal state. It blocks
// the calling goroutine only; sibling operations sharing the scan proceed
// concurrently. Context cancellation during a sleep or before an attempt
// settles the job as TimedOut with the cancellation cause.
func Run(ctx context.Context, cfg Config, fn PollFunc) Outcome {
	cfg = cfg.withDefaults()
	outcome := Outcome{State: StatePending, SubmittedAt: time.Now()}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			outcome.State = StateTimedOut
			outcome.Err = err
			return outcome
		}

		outcome.Attempts = attempt
		verdict, payload, err := fn(ctx, attempt)
		if err != nil {
			outcome.State = StateErrored
			outcome.Err = err
			return outcome
		}

		switch verdict {
		case VerdictReady:
			outcome.State = StateReady
			outcome.Payload = payload
			return outcome
		case VerdictErrored:
			outcome.State = StateErrored
			return outcome
		}

		// Still pending. The final attempt does not earn another sleep.
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-cfg.Clock.After(cfg.Interval):
		case <-ctx.Done():
			outcome.State = StateTimedOut
			outcome.Err = ctx.Err()
			return outcome
		}
	}

	outcome.State = StateTimedOut
	outcome.Err = ErrBudgetExhausted
	return outcome
}
