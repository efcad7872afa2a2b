// Package resilience keeps the practice session usable when a speech or
// generation backend misbehaves.
//
// [CircuitBreaker] stops hammering a backend that keeps failing; after a
// cool-down it lets a few probe calls through before trusting it again.
// [FallbackGroup] chains alternative providers of one kind behind per-entry
// breakers, so a learner keeps practising on a fallback while the primary
// recovers.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the cool-down
	// elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. Probes
	// decide whether the breaker closes again or re-opens.
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
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes one [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log messages, usually the provider name.
	Name string

	// MaxFailures is how many consecutive failures close-state calls may
	// accumulate before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is the cool-down before an open breaker starts probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is how many successful probes it takes to close again; a
	// single failed probe re-opens immediately. Default: 3.
	HalfOpenMax int
}

// CircuitBreaker is a classic closed → open → half-open breaker.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
	probeOK  int
}

// NewCircuitBreaker builds a breaker from cfg, substituting defaults for
// zero-value fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
	}
}

// Execute runs fn unless the breaker rejects the call. fn's error is
// returned unchanged and counted against the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.allow()
	if err != nil {
		return err
	}

	callErr := fn()
	cb.settle(probe, callErr == nil)
	return callErr
}

// allow decides whether a call may proceed and whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) allow() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeOK = 0
		slog.Info("breaker cool-down elapsed, probing", "name", cb.name)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle records the outcome of one permitted call.
func (cb *CircuitBreaker) settle(probe, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case probe && !success:
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.failures = cb.maxFailures
		slog.Warn("breaker re-opened, probe failed", "name", cb.name)

	case probe:
		cb.probeOK++
		if cb.probeOK >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			slog.Info("breaker closed, probes succeeded", "name", cb.name)
		}

	case !success:
		cb.failures++
		cb.openedAt = time.Now()
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			slog.Warn("breaker opened", "name", cb.name, "consecutive_failures", cb.failures)
		}

	default:
		cb.failures = 0
	}
}

// State reports the breaker's mode. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen]; the stored state switches on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeOK = 0
	slog.Info("breaker reset", "name", cb.name)
}
