// Package resilience guards the external synthesis, completion and
// transcription clients used while assembling an episode.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops hammering a provider after repeated failures. [FallbackGroup] keeps an
// ordered list of providers of one type, each behind its own breaker, and
// moves on to the next healthy entry when a call fails. The TTS, LLM and STT
// wrappers in this package satisfy the provider interfaces so the pipeline
// never knows it is talking to a chain.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. Enough
	// successes close the breaker; one failure re-opens it.
	StateHalfOpen
)

// String returns the state name used in logs and metric attributes.
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

// CircuitBreakerConfig holds the tuning knobs of a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of trial calls allowed while half-open.
	// Default: 3.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition with the lock
	// released.
	OnStateChange func(name string, from, to State)

	// Now replaces the clock in tests.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	trials        int
	trialFailures int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero config fields get their
// defaults.
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
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Name returns the breaker label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn if the breaker admits the call. While open it returns
// [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	var transitions []stateChange
	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		transitions = append(transitions, cb.setState(StateHalfOpen))
		cb.trials, cb.trialFailures = 0, 0
	}
	probing := cb.state == StateHalfOpen
	if probing {
		if cb.trials >= cb.cfg.HalfOpenMax {
			cb.mu.Unlock()
			cb.notify(transitions)
			return ErrCircuitOpen
		}
		cb.trials++
	}
	cb.mu.Unlock()
	cb.notify(transitions)

	err := fn()

	cb.mu.Lock()
	var after stateChange
	if err != nil {
		after = cb.recordFailure(probing)
	} else {
		after = cb.recordSuccess(probing)
	}
	cb.mu.Unlock()
	cb.notify([]stateChange{after})
	return err
}

type stateChange struct{ from, to State }

func (cb *CircuitBreaker) setState(to State) stateChange {
	ch := stateChange{from: cb.state, to: to}
	cb.state = to
	return ch
}

func (cb *CircuitBreaker) notify(changes []stateChange) {
	for _, ch := range changes {
		if ch.from == ch.to {
			continue
		}
		switch ch.to {
		case StateOpen:
			slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "from", ch.from.String())
		default:
			slog.Info("circuit breaker state change", "name", cb.cfg.Name, "from", ch.from.String(), "to", ch.to.String())
		}
		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.cfg.Name, ch.from, ch.to)
		}
	}
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(probing bool) stateChange {
	if probing {
		cb.trialFailures++
		cb.failures = cb.cfg.MaxFailures
		cb.openedAt = cb.cfg.Now()
		return cb.setState(StateOpen)
	}
	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures && cb.state == StateClosed {
		cb.openedAt = cb.cfg.Now()
		return cb.setState(StateOpen)
	}
	return stateChange{from: cb.state, to: cb.state}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(probing bool) stateChange {
	if probing {
		if cb.state == StateHalfOpen && cb.trials-cb.trialFailures >= cb.cfg.HalfOpenMax {
			cb.failures, cb.trials, cb.trialFailures = 0, 0, 0
			return cb.setState(StateClosed)
		}
		return stateChange{from: cb.state, to: cb.state}
	}
	cb.failures = 0
	return stateChange{from: cb.state, to: cb.state}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears every counter.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	ch := cb.setState(StateClosed)
	cb.failures, cb.trials, cb.trialFailures = 0, 0, 0
	cb.mu.Unlock()
	cb.notify([]stateChange{ch})
}
