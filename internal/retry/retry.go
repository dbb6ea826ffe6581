package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"paperpost/internal/types"
)

const defaultMaxDelay = 24 * time.Hour

type Policy struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps a single wait. Zero falls back to a day.
	MaxDelay  time.Duration
	Retryable func(error) bool
	Logger    *slog.Logger

	// timer is replaced in tests.
	timer backoff.Timer
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Retryable == nil {
		p.Retryable = types.IsRetryable
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// backOff doubles from BaseDelay without jitter. The exponential backoff
// clamps to MaxInterval before multiplying, so long retry chains cannot
// overflow.
func (p Policy) backOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = defaultMaxDelay
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

// Do runs fn until it succeeds, returns a non-retryable error, the context is
// done, or MaxAttempts is reached.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var value T
	attempts := 0
	stopped := false

	operation := func() error {
		if err := ctx.Err(); err != nil {
			stopped = true
			return backoff.Permanent(err)
		}
		attempts++

		v, err := fn(ctx)
		if err == nil {
			value = v
			return nil
		}
		if !p.Retryable(err) {
			stopped = true
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		p.Logger.Warn("Attempt failed, retrying", "operation", p.Name, "attempt", attempts, "max_attempts", p.MaxAttempts, "wait_duration", wait, "error", err)
	}

	err := backoff.RetryNotifyWithTimer(operation, p.backOff(ctx), notify, p.timer)
	switch {
	case err == nil:
		if attempts > 1 {
			p.Logger.Info("Operation succeeded on retry", "operation", p.Name, "attempt", attempts)
		}
		return value, nil
	case stopped, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		var zero T
		return zero, err
	default:
		var zero T
		return zero, fmt.Errorf("%s: max attempts (%d) exceeded: %w", p.Name, p.MaxAttempts, err)
	}
}
