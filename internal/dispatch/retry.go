package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/logger"
)

var (
	// ErrRetriesExhausted is returned when every attempt of a command failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrUnreachable is returned by an attempt whose probe failed.
	ErrUnreachable = errors.New("device unreachable")
)

// RetryPolicy is an exponential backoff schedule.
type RetryPolicy struct {
	// InitialDelay follows the first failed attempt.
	InitialDelay time.Duration
	// MaxAttempts is the attempt budget.
	MaxAttempts int
}

// PolicyFrom converts the configured retry settings.
func PolicyFrom(r config.Retry) RetryPolicy {
	return RetryPolicy{
		InitialDelay: r.InitialDelay,
		MaxAttempts:  r.MaxAttempts,
	}
}

// Delays returns the wait after each failed attempt, doubling from InitialDelay.
func (p RetryPolicy) Delays() []time.Duration {
	delays := make([]time.Duration, 0, p.MaxAttempts)

	delay := p.InitialDelay
	for range p.MaxAttempts {
		delays = append(delays, delay)
		delay *= 2
	}

	return delays
}

// MaxElapsed is the total backoff time of a command that never succeeds.
func (p RetryPolicy) MaxElapsed() time.Duration {
	var total time.Duration
	for _, d := range p.Delays() {
		total += d
	}

	return total
}

// retry runs attempt until it succeeds, the budget is spent or ctx ends.
// Every failed attempt is followed by its backoff delay.
func retry(ctx context.Context, p RetryPolicy, attempt func(ctx context.Context, n int) error) error {
	var lastErr error

	for n, delay := range p.Delays() {
		lastErr = attempt(ctx, n+1)
		if lastErr == nil {
			return nil
		}

		logger.WarnKV(ctx, "Attempt failed",
			"attempt", n+1,
			"max_attempts", p.MaxAttempts,
			"retry_in", delay,
			"error", lastErr,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return fmt.Errorf("abandoned after %d attempts: %w", n+1, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.MaxAttempts, lastErr)
}
