package core

import (
	"context"
	"fmt"
	"time"
)

// Sleeper waits for d or until ctx is done. Tests replace it with a fake that
// records the requested delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryPolicy retries an operation with exponential backoff. Attempt n
// (0-based) that fails with a retryable error waits Backoff(n) before the
// next attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     func(attempt int, base time.Duration) time.Duration
	Retryable   func(err error) bool
	Sleep       Sleeper
}

// DefaultRetryPolicy returns three attempts with delays of 1s and 2s between
// them, retrying only transient errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Backoff:     ExponentialBackoff,
		Retryable:   IsTransient,
		Sleep:       SleepContext,
	}
}

// MaxBackoff caps a single ExponentialBackoff delay.
const MaxBackoff = 5 * time.Minute

// ExponentialBackoff doubles base for every attempt: base, 2*base, 4*base...
// up to MaxBackoff.
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		return 0
	}
	d := base
	for range attempt {
		if d >= MaxBackoff/2 {
			return MaxBackoff
		}
		d *= 2
	}
	return min(d, MaxBackoff)
}

// SleepContext blocks for d, returning early with ctx.Err() when ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. The last error is returned unchanged so callers can still
// classify it.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return fmt.Errorf("%w (gave up: %v)", err, ctxErr)
			}
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !p.Retryable(err) || attempt == p.MaxAttempts-1 {
			return err
		}

		if sleepErr := p.Sleep(ctx, p.Backoff(attempt, p.BaseDelay)); sleepErr != nil {
			return fmt.Errorf("%w (gave up: %v)", err, sleepErr)
		}
	}
	return err
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Backoff == nil {
		p.Backoff = d.Backoff
	}
	if p.Retryable == nil {
		p.Retryable = d.Retryable
	}
	if p.Sleep == nil {
		p.Sleep = d.Sleep
	}
	return p
}
