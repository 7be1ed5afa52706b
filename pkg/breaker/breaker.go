// Package breaker guards each backend with a circuit breaker so a dead
// backend fails fast instead of eating the full generation timeout on
// every request.
package breaker

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ckindle-42/portal/pkg/config"
)

// State is the circuit position for one backend.
type State string

const (
	// StateClosed admits all traffic.
	StateClosed State = "CLOSED"
	// StateOpen denies traffic until the recovery timeout elapses.
	StateOpen State = "OPEN"
	// StateHalfOpen admits a bounded number of trial calls.
	StateHalfOpen State = "HALF_OPEN"
)

// Status is a point-in-time snapshot of one circuit, safe to expose
// on health and stats endpoints.
type Status struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	HalfOpenInFlight    int       `json:"half_open_in_flight,omitempty"`
}

type circuit struct {
	state            State
	failures         int
	lastFailure      time.Time
	halfOpenInFlight int
}

// Breaker tracks one circuit per backend. All transitions are
// serialized under a single mutex; the hot path is a map lookup and a
// couple of integer comparisons.
type Breaker struct {
	cfg *config.BreakerConfig

	mu       sync.Mutex
	circuits map[string]*circuit

	// now is swapped out by tests to step through recovery windows.
	now func() time.Time
}

// New creates a breaker. With cfg disabled every Admit allows.
func New(cfg *config.BreakerConfig) *Breaker {
	return &Breaker{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// circuitLocked returns the backend's circuit, creating a closed one
// on first sight. Callers must hold b.mu.
func (b *Breaker) circuitLocked(backend string) *circuit {
	c, ok := b.circuits[backend]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[backend] = c
	}
	return c
}

// Admit reports whether a call to the backend may proceed. The reason
// is empty when allowed and explains the denial otherwise.
//
// CLOSED always allows. OPEN allows once the recovery timeout has
// elapsed since the last failure, moving to HALF_OPEN. HALF_OPEN allows
// up to the configured number of trial calls, then denies until a
// result is recorded.
func (b *Breaker) Admit(backend string) (bool, string) {
	if !b.cfg.IsEnabled() {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitLocked(backend)
	switch c.state {
	case StateClosed:
		return true, ""

	case StateOpen:
		elapsed := b.now().Sub(c.lastFailure)
		if elapsed < b.cfg.RecoveryTimeout() {
			wait := int(math.Ceil((b.cfg.RecoveryTimeout() - elapsed).Seconds()))
			return false, fmt.Sprintf("circuit open for %s, retry in %ds", backend, wait)
		}
		c.state = StateHalfOpen
		c.halfOpenInFlight = 1
		return true, ""

	case StateHalfOpen:
		if c.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false, fmt.Sprintf("circuit half-open for %s, trial call budget exhausted", backend)
		}
		c.halfOpenInFlight++
		return true, ""
	}

	// Unreachable with a well-formed circuit.
	return false, fmt.Sprintf("circuit for %s in unknown state", backend)
}

// RecordSuccess notes a successful call. A HALF_OPEN trial success
// closes the circuit and zeroes all counters; under CLOSED the failure
// count decays toward zero so isolated failures age out.
func (b *Breaker) RecordSuccess(backend string) {
	if !b.cfg.IsEnabled() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitLocked(backend)
	switch c.state {
	case StateHalfOpen:
		c.state = StateClosed
		c.failures = 0
		c.halfOpenInFlight = 0
	case StateClosed:
		if c.failures > 0 {
			c.failures--
		}
	}
}

// RecordFailure notes a failed call. A HALF_OPEN trial failure reopens
// the circuit; under CLOSED the circuit opens once the consecutive
// failure count reaches the threshold.
func (b *Breaker) RecordFailure(backend string) {
	if !b.cfg.IsEnabled() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitLocked(backend)
	c.failures++
	c.lastFailure = b.now()

	switch c.state {
	case StateHalfOpen:
		c.state = StateOpen
		c.halfOpenInFlight = 0
	case StateClosed:
		if c.failures >= b.cfg.Threshold {
			c.state = StateOpen
		}
	}
}

// Reset forces the backend's circuit to CLOSED with zeroed counters.
// Admin surface; not part of the normal recovery path.
func (b *Breaker) Reset(backend string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.circuits[backend] = &circuit{state: StateClosed}
}

// State returns the backend's current circuit position. Backends that
// were never touched report CLOSED.
func (b *Breaker) State(backend string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[backend]
	if !ok {
		return StateClosed
	}
	return c.state
}

// Snapshot returns the status of every tracked circuit.
func (b *Breaker) Snapshot() map[string]Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]Status, len(b.circuits))
	for backend, c := range b.circuits {
		out[backend] = Status{
			State:               c.state,
			ConsecutiveFailures: c.failures,
			LastFailure:         c.lastFailure,
			HalfOpenInFlight:    c.halfOpenInFlight,
		}
	}
	return out
}
