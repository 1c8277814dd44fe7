package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMaxAttempts    = 5
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 8 * time.Second
)

// ExhaustedError reports that every attempt failed transiently and the
// budget ran out. The last attempt's error is wrapped.
type ExhaustedError struct {
	Stage    string
	Attempts int
	Reason   string
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("transient_recovery_exhausted stage=%s attempts=%d reason=%s: %v",
		e.Stage, e.Attempts, e.Reason, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err came from an exhausted attempt budget.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// Policy is a bounded retry schedule for transient failures. The zero value
// uses the package defaults.
type Policy struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// OnRetry, if set, observes every scheduled retry before its backoff.
	OnRetry func(stage string, attempt int, delay time.Duration)
	// SleepFn overrides the backoff sleep. Tests inject instant sleeps.
	SleepFn func(ctx context.Context, d time.Duration) error
}

// Do invokes fn until it succeeds, fails terminally, or the attempt budget
// runs out. Transient failures back off exponentially between attempts;
// terminal failures return immediately, wrapped with the stage and the
// classification reason. The context is honored after every attempt and
// during backoff.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, stage string, fn func(ctx context.Context) error) error {
	maxAttempts := p.effectiveMaxAttempts()

	var lastErr error
	var lastDecision Decision
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		lastDecision = Classify(err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !lastDecision.IsTransient() {
			return fmt.Errorf("terminal_failure stage=%s attempt=%d reason=%s: %w",
				stage, attempt, lastDecision.Reason, err)
		}
		if attempt == maxAttempts {
			break
		}

		delay := p.Delay(attempt)
		logger.Warn("transient failure; retrying",
			"stage", stage,
			"classification_reason", lastDecision.Reason,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err,
		)
		if p.OnRetry != nil {
			p.OnRetry(stage, attempt, delay)
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}

	return &ExhaustedError{
		Stage:    stage,
		Attempts: maxAttempts,
		Reason:   lastDecision.Reason,
		Err:      lastErr,
	}
}

// Delay returns the backoff scheduled after the given attempt. The schedule
// doubles from BackoffInitial and jumps to BackoffMax once it reaches half
// of it.
func (p Policy) Delay(attempt int) time.Duration {
	initial := p.effectiveBackoffInitial()
	maxDelay := p.effectiveBackoffMax()

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay/2 {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.SleepFn != nil {
		return p.SleepFn(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p Policy) effectiveMaxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (p Policy) effectiveBackoffInitial() time.Duration {
	if p.BackoffInitial > 0 {
		return p.BackoffInitial
	}
	return DefaultBackoffInitial
}

func (p Policy) effectiveBackoffMax() time.Duration {
	if p.BackoffMax > 0 {
		return p.BackoffMax
	}
	return DefaultBackoffMax
}
