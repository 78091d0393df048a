// Package retry executes remote operations under a bounded exponential backoff
// policy.
//
// Every failure is classified as transient or permanent. Transient failures are
// retried after a delay of BaseDelay * Multiplier^(attempt-1), capped at
// MaxDelay. Permanent failures are returned unchanged on the spot. Once the
// attempts run out the last error is wrapped in a RetriesExhaustedError. The
// delay between attempts honours context cancellation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/isometry/papercut-seeder/internal/logging"
)

// Policy holds the retry configuration. It is built once at startup and
// shared read-only.
type Policy struct {
	MaxAttempts int           // Total attempts, including the first one
	BaseDelay   time.Duration // Delay after the first failure
	Multiplier  float64       // Backoff multiplication factor
	MaxDelay    time.Duration // Upper bound for a single delay
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
	}
}

// Validate reports whether the policy is usable.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay cannot be negative, got %s", p.BaseDelay)
	}
	if p.Multiplier < 1.0 {
		return fmt.Errorf("backoff multiplier must be at least 1.0, got %g", p.Multiplier)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay %s is lower than base delay %s", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// Delay returns the wait that follows the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) || math.IsInf(delay, 1) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Class is the retry classification of a failure.
type Class int

const (
	Permanent Class = iota
	Transient
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) Class

// RetryableError is implemented by errors that know their own classification.
type RetryableError interface {
	error
	IsRetryable() bool
}

// DefaultClassifier treats errors implementing RetryableError according to
// their own verdict and network timeouts as transient. Everything else is
// permanent.
func DefaultClassifier(err error) Class {
	if err == nil {
		return Permanent
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		if retryable.IsRetryable() {
			return Transient
		}
		return Permanent
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return Transient
	}

	return Permanent
}

// Executor runs operations under a Policy.
type Executor struct {
	policy   Policy
	classify Classifier
	logger   logging.Logger
	wait     func(ctx context.Context, d time.Duration) error
}

// Option customises an Executor.
type Option func(*Executor)

// WithClassifier replaces the default classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.classify = c
		}
	}
}

// WithLogger sets the logger used for retry events.
func WithLogger(l logging.Logger) Option {
	return func(e *Executor) {
		e.logger = logging.OrNop(l)
	}
}

// NewExecutor validates the policy and returns an executor for it.
func NewExecutor(policy Policy, opts ...Option) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	e := &Executor{
		policy:   policy,
		classify: DefaultClassifier,
		logger:   logging.Nop{},
		wait:     sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do runs operation until it succeeds, fails permanently, runs out of attempts
// or the context is cancelled. The name is only used for logging.
func (e *Executor) Do(ctx context.Context, name string, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &CancelledError{Operation: name, Attempts: attempt - 1, Cause: err}
		}

		if attempt > 1 {
			e.logger.Debug("Retrying operation", map[string]any{
				"operation":    name,
				"attempt":      attempt,
				"max_attempts": e.policy.MaxAttempts,
				"last_error":   lastErr.Error(),
			})
		}

		err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("Operation succeeded after retries", map[string]any{
					"operation":      name,
					"total_attempts": attempt,
				})
			}
			return nil
		}

		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return &CancelledError{Operation: name, Attempts: attempt, Cause: ctxErr, Last: err}
		}

		if e.classify(err) == Permanent {
			e.logger.Debug("Non-retryable error encountered", map[string]any{
				"operation": name,
				"error":     err.Error(),
				"attempt":   attempt,
			})
			return err
		}

		// Don't wait after the last attempt
		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.policy.Delay(attempt)
		if err := e.wait(ctx, delay); err != nil {
			e.logger.Warn("Operation cancelled during retry", map[string]any{
				"operation":     name,
				"context_error": err.Error(),
				"attempt":       attempt,
			})
			return &CancelledError{Operation: name, Attempts: attempt, Cause: err, Last: lastErr}
		}
	}

	e.logger.Error("Operation failed after all retries exhausted", map[string]any{
		"operation":      name,
		"total_attempts": e.policy.MaxAttempts,
		"final_error":    lastErr.Error(),
	})

	return &RetriesExhaustedError{Operation: name, Attempts: e.policy.MaxAttempts, Last: lastErr}
}

// Do is the value-returning form of Executor.Do.
func Do[T any](ctx context.Context, e *Executor, name string, operation func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, name, func(ctx context.Context) error {
		value, err := operation(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func sleep(ctx context.Context, d time.Duration) error {
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
