// Package circuitbreaker provides a per-model circuit breaker with
// closed → open → half-open state transitions.
//
// The dispatcher consults the breaker before calling a provider model:
// an open circuit is treated the same as the provider reporting
// unavailability, so requests route to the fallback tier without
// burning a call against a model that is known to be down.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal: requests flow through
	StateOpen                  // Tripped: requests are rejected
	StateHalfOpen              // Probing: one request allowed to test recovery
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var cbStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pixelmint",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by model, from-state, and to-state.",
}, []string{"model", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(cbStateTransitions)
}

// entry tracks per-model circuit state.
type entry struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker is a per-model circuit breaker. It tracks consecutive failure
// counts per model and trips open when failures exceed the threshold.
// After openDuration, the circuit moves to half-open and allows one probe.
type Breaker struct {
	mu           sync.Mutex
	entries      map[string]*entry
	threshold    int
	openDuration time.Duration
}

// New creates a circuit breaker that opens after threshold consecutive
// failures and stays open for openDuration before probing.
func New(threshold int, openDuration time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}
	return &Breaker{
		entries:      make(map[string]*entry),
		threshold:    threshold,
		openDuration: openDuration,
	}
}

// Allow returns true if a request to model should be allowed.
// If the circuit is open and openDuration has elapsed, it transitions to half-open.
func (b *Breaker) Allow(model string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[model]
	if !ok {
		return true // No entry = closed
	}

	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(e.lastFailure) >= b.openDuration {
			b.transition(e, model, StateHalfOpen)
			return true // Allow one probe
		}
		return false
	case StateHalfOpen:
		return false // Already probing — reject until probe completes
	default:
		return true
	}
}

// RecordSuccess records a successful request. Resets failure count and
// closes the circuit if it was half-open.
func (b *Breaker) RecordSuccess(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[model]
	if !ok {
		return
	}

	if e.state == StateHalfOpen {
		b.transition(e, model, StateClosed)
	}
	e.failures = 0
}

// RecordFailure records a failed request. If consecutive failures exceed
// the threshold, trips the circuit open.
func (b *Breaker) RecordFailure(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[model]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[model] = e
	}

	e.failures++
	e.lastFailure = time.Now()

	if e.state == StateHalfOpen {
		// Probe failed — back to open.
		b.transition(e, model, StateOpen)
		return
	}

	if e.state == StateClosed && e.failures >= b.threshold {
		b.transition(e, model, StateOpen)
	}
}

// State returns the current state for a model. Returns StateClosed for unknown models.
func (b *Breaker) State(model string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[model]
	if !ok {
		return StateClosed
	}
	return e.state
}

// transition changes state and records the metric.
// Caller must hold b.mu.
func (b *Breaker) transition(e *entry, model string, to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	cbStateTransitions.WithLabelValues(model, from.String(), to.String()).Inc()
}
