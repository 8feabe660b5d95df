package engine

import (
	"math"
	"time"
)

// Backoff computes capped exponential retry delays:
// delay = min(Base * Multiplier^(attempt-1), Max).
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff is the engine default: 1s base doubling up to 1m.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: time.Minute, Multiplier: 2.0}
}

// Delay returns the wait before retrying after the given attempt (1-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1)))
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
