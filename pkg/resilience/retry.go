package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig bounds Retry. Zero fields take the defaults noted.
type RetryConfig struct {
	MaxAttempts  int           // 3
	InitialDelay time.Duration // 100ms
	MaxDelay     time.Duration // 10s
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	return c
}

// backoff doubles per attempt up to MaxDelay, then picks uniformly from the
// upper half so that concurrent callers spread out.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := c.MaxDelay
	if shift := attempt - 1; shift < 32 {
		if exp := c.InitialDelay << shift; exp > 0 && exp < c.MaxDelay {
			d = exp
		}
	}
	half := d / 2
	return half + rand.N(half+1)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type delayedError struct {
	err   error
	after time.Duration
}

func (e *delayedError) Error() string { return e.err.Error() }
func (e *delayedError) Unwrap() error { return e.err }

// After asks Retry to wait at least d before the next attempt, typically
// because the server sent Retry-After.
func After(err error, d time.Duration) error {
	if err == nil || d <= 0 {
		return err
	}
	return &delayedError{err: err, after: d}
}

// Retry calls fn until it succeeds, returns a Permanent error, the circuit
// is open, or the attempts run out. The final error keeps its chain.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				slog.Debug("retry succeeded", "operation", name, "attempt", attempt)
			}
			return nil
		}
		if perm := (*permanentError)(nil); errors.As(err, &perm) {
			return perm.err
		}
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
		}

		wait := cfg.backoff(attempt)
		if d := (*delayedError)(nil); errors.As(err, &d) {
			wait = max(wait, min(d.after, cfg.MaxDelay))
		}
		slog.Warn("retrying", "operation", name, "attempt", attempt, "wait", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: retry abandoned: %w", name, ctx.Err())
		}
	}
}
