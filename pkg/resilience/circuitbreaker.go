// Package resilience keeps a flaky search platform from stalling or
// flooding analyses: retries with jittered backoff, a circuit breaker per
// platform, and per-call deadlines.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling through while a breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit. Default 5.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before one probe is
	// let through. Default 30s.
	ResetTimeout time.Duration
	// IsFailure decides which errors count. Default: any non-nil error.
	IsFailure func(error) bool
	// OnStateChange runs after every transition, outside the lock.
	OnStateChange func(name string, to State)
}

// CircuitBreaker fails fast once a platform has failed FailureThreshold
// times in a row, and lets a single probe through after ResetTimeout.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute calls fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn()
	cb.release(cb.cfg.IsFailure(err))
	return err
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.setState(StateClosed)
	cb.failures, cb.probing = 0, false
	cb.mu.Unlock()
	cb.notify(changed, StateClosed)
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	var changed bool
	defer func() {
		to := cb.state
		cb.mu.Unlock()
		cb.notify(changed, to)
	}()

	if cb.state == StateOpen {
		wait := cb.cfg.ResetTimeout - time.Since(cb.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s, next probe in %v", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		changed = cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probing {
			return fmt.Errorf("%w: %s, probe in flight", ErrCircuitOpen, cb.name)
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) release(failed bool) {
	cb.mu.Lock()
	var changed bool
	wasProbe := cb.state == StateHalfOpen
	cb.probing = false
	switch {
	case !failed:
		cb.failures = 0
		changed = cb.setState(StateClosed)
	case wasProbe:
		cb.openedAt = time.Now()
		changed = cb.setState(StateOpen)
	default:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.openedAt = time.Now()
			changed = cb.setState(StateOpen)
		}
	}
	failures, to := cb.failures, cb.state
	cb.mu.Unlock()

	if changed {
		cb.logger.Warn("circuit state changed", "to", to.String(), "consecutive_failures", failures)
	}
	cb.notify(changed, to)
}

// setState must be called with mu held. It reports whether the state moved.
func (cb *CircuitBreaker) setState(to State) bool {
	if cb.state == to {
		return false
	}
	cb.state = to
	return true
}

func (cb *CircuitBreaker) notify(changed bool, to State) {
	if changed && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
