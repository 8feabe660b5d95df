// Package breaker implements a per-key circuit breaker registry. A key is
// typically an external host; once a key accumulates enough consecutive
// failures its circuit opens and attempts are refused until a cool-down
// elapses, after which a single probe is let through.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/metrics"
)

// State is the circuit state tag for one key.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Defaults used when the registry is constructed with zero values.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
)

type circuit struct {
	state       State
	failures    int
	lastFailure time.Time
	openedAt    time.Time
	probing     bool
}

// Registry tracks circuit state per key. Safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger
}

// NewRegistry creates a Registry. Non-positive threshold or cooldown fall
// back to the defaults.
func NewRegistry(threshold int, cooldown time.Duration, logger *zap.Logger) *Registry {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Registry{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
	}
}

// CanAttempt reports whether a call for key may proceed. When an open
// circuit's cool-down has elapsed the circuit moves to HALF_OPEN and exactly
// one probe is admitted; further attempts are refused until the probe
// reports its outcome.
func (r *Registry) CanAttempt(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[key]
	if !ok {
		return true
	}

	switch c.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(c.openedAt) < r.cooldown {
			return false
		}
		c.state = StateHalfOpen
		c.probing = true
		metrics.CircuitTransitions.WithLabelValues(string(StateHalfOpen)).Inc()
		r.logger.Info("Circuit half-open, admitting probe", zap.String("key", key))
		return true
	case StateHalfOpen:
		if c.probing {
			return false
		}
		c.probing = true
		return true
	}
	return true
}

// RecordSuccess resets the key's failure counter and forces the circuit
// closed.
func (r *Registry) RecordSuccess(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[key]
	if !ok {
		return
	}
	if c.state != StateClosed {
		metrics.CircuitTransitions.WithLabelValues(string(StateClosed)).Inc()
		r.logger.Info("Circuit closed", zap.String("key", key))
	}
	delete(r.circuits, key)
}

// RecordFailure increments the key's consecutive-failure counter, opening
// the circuit at the threshold. A failed half-open probe re-opens
// immediately and restarts the cool-down.
func (r *Registry) RecordFailure(key string) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[key]
	if !ok {
		c = &circuit{state: StateClosed}
		r.circuits[key] = c
	}

	c.failures++
	c.lastFailure = now

	if c.state == StateHalfOpen || (c.state == StateClosed && c.failures >= r.threshold) {
		c.state = StateOpen
		c.openedAt = now
		c.probing = false
		metrics.CircuitTransitions.WithLabelValues(string(StateOpen)).Inc()
		r.logger.Warn("Circuit opened",
			zap.String("key", key),
			zap.Int("consecutive_failures", c.failures),
		)
	}
}

// IsOpen reports whether the circuit for key currently refuses attempts.
func (r *Registry) IsOpen(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[key]
	if !ok {
		return false
	}
	if c.state == StateOpen && time.Since(c.openedAt) >= r.cooldown {
		return false
	}
	return c.state == StateOpen
}

// Reset clears all recorded state for key.
func (r *Registry) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.circuits, key)
}

// StateOf returns the current state tag for key.
func (r *Registry) StateOf(key string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.circuits[key]
	if !ok {
		return StateClosed
	}
	return c.state
}
