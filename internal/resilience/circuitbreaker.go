// Package resilience guards calls into external speech tooling.
//
// Forced alignment shells out to a slow, occasionally crashing aligner and
// the phoneme recogniser lives behind HTTP. A [CircuitBreaker] stops the
// engine from paying a full timeout on every request once such a
// collaborator is known to be down; a [FallbackGroup] tries several
// instances of the same collaborator in order.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker, a single failure opens it again.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values select the
// defaults noted per field.
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker again. Default: 3.
	HalfOpenMax int

	// OnStateChange, when set, is called after every transition. It runs
	// with the breaker's lock released.
	OnStateChange func(name string, from, to State)

	// IsFailure decides whether an error counts against the breaker.
	// Default: every error except context.Canceled, so that callers hanging
	// up never trip the breaker.
	IsFailure func(error) bool
}

// CircuitBreaker is a three-state (closed, open, half-open) breaker.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	probes        int
	probeFailures int
}

// NewCircuitBreaker returns a closed breaker.
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
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn unless the breaker rejects the call, in which case it
// returns [ErrCircuitOpen] without calling fn. A context that is already
// done short-circuits without touching the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, transition, err := cb.admit()
	cb.notify(transition)
	if err != nil {
		return err
	}

	callErr := fn(ctx)

	cb.notify(cb.record(probe, callErr))
	return callErr
}

type transition struct {
	from, to State
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, t *transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, nil, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.probeFailures = 0, 0
		t = &transition{StateOpen, StateHalfOpen}
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, nil, ErrCircuitOpen
		}
	}
	if cb.state == StateHalfOpen {
		cb.probes++
		return true, t, nil
	}
	return false, t, nil
}

// record books the outcome of a call.
func (cb *CircuitBreaker) record(probe bool, err error) *transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && !cb.cfg.IsFailure(err) {
		// Neutral outcome: give the probe slot back and keep the counters.
		if probe && cb.state == StateHalfOpen {
			cb.probes--
		}
		return nil
	}
	if err == nil {
		if !probe {
			cb.failures = 0
			return nil
		}
		if cb.probes-cb.probeFailures >= cb.cfg.HalfOpenMax && cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.failures, cb.probes, cb.probeFailures = 0, 0, 0
			return &transition{StateHalfOpen, StateClosed}
		}
		return nil
	}

	if probe {
		cb.probeFailures++
		if cb.state != StateHalfOpen {
			return nil
		}
		cb.state = StateOpen
		cb.openedAt = time.Now()
		return &transition{StateHalfOpen, StateOpen}
	}

	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		return &transition{StateClosed, StateOpen}
	}
	return nil
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t == nil {
		return
	}
	level := slog.LevelInfo
	if t.to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"name", cb.cfg.Name, "from", t.from.String(), "to", t.to.String())
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the
// next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.probes, cb.probeFailures = 0, 0, 0
	cb.mu.Unlock()

	if from != StateClosed {
		cb.notify(&transition{from, StateClosed})
	}
}
