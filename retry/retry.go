// Package retry centralizes bounded retry with exponential backoff for
// every I/O-bound pipeline stage. Policies live in one place so backoff
// curves change in one place.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Policy bounds the attempts and shapes the backoff curve. The delay
// before attempt k is min(BaseDelay * BackoffMultiplier^(k-1), MaxDelay).
type Policy struct {
	MaxAttempts       int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay         time.Duration `json:"base_delay" yaml:"base_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxDelay          time.Duration `json:"max_delay" yaml:"max_delay"`
}

// DefaultPolicy returns sensible retry defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         5 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          2 * time.Minute,
	}
}

// Validate checks the policy for errors.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1")
	}
	return nil
}

// Delay returns the backoff before the given 1-based attempt number.
// Attempt 1 runs immediately.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	multiplier := 1.0
	for i := 2; i < attempt; i++ {
		multiplier *= p.BackoffMultiplier
	}
	d := time.Duration(float64(p.BaseDelay) * multiplier)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// transientError marks a failure as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps an error to mark it retryable: service or network
// unavailability at an I/O boundary. Anything not marked transient is
// permanent and surfaced immediately.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether the error (or anything it wraps) is marked
// transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// ExhaustedError wraps the final error after the retry budget is spent.
type ExhaustedError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Name, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Clock abstracts backoff sleeps so tests drive retries with a fake clock.
type Clock interface {
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Runner executes tasks under a retry policy.
type Runner struct {
	policy Policy
	clock  Clock
	logger *slog.Logger
}

// NewRunner creates a runner with the real clock.
func NewRunner(policy Policy, logger *slog.Logger) *Runner {
	return NewRunnerWithClock(policy, logger, realClock{})
}

// NewRunnerWithClock creates a runner with an injected clock.
func NewRunnerWithClock(policy Policy, logger *slog.Logger, clock Clock) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{policy: policy, clock: clock, logger: logger}
}

// Policy returns the runner's policy.
func (r *Runner) Policy() Policy { return r.policy }

// Run executes the task, retrying transient failures with backoff until
// the policy's attempt budget is spent. Permanent failures return on the
// first occurrence. Context cancellation aborts between attempts. The
// returned count is how many attempts actually ran.
func (r *Runner) Run(ctx context.Context, name string, task func(ctx context.Context) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if delay := r.policy.Delay(attempt); delay > 0 {
			r.logger.Debug("Backing off before retry",
				"task", name,
				"attempt", attempt,
				"delay", delay)
			if err := r.clock.Sleep(ctx, delay); err != nil {
				return attempt - 1, err
			}
		}

		lastErr = task(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if !IsTransient(lastErr) {
			r.logger.Debug("Permanent failure, not retrying",
				"task", name,
				"attempt", attempt,
				"error", lastErr)
			return attempt, lastErr
		}

		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}

		r.logger.Warn("Transient failure",
			"task", name,
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"error", lastErr)
	}

	return r.policy.MaxAttempts, &ExhaustedError{Name: name, Attempts: r.policy.MaxAttempts, Err: lastErr}
}
