// Package ratelimit implements a token-bucket rate limiter keyed by
// identity. Buckets refill lazily on each check, so no background goroutine
// is required; idle identities are pruned opportunistically.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Limit describes one bucket: capacity tokens per window.
type Limit struct {
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

// Request categories and their per-60s ceilings.
const (
	CategoryGeneral        = "general"
	CategoryQualification  = "qualification"
	CategoryAuth           = "auth"
	CategoryDomainAnalysis = "domain-analysis"
)

var categoryLimits = map[string]Limit{
	CategoryGeneral:        {Requests: 100, Window: time.Minute},
	CategoryQualification:  {Requests: 10, Window: time.Minute},
	CategoryAuth:           {Requests: 5, Window: time.Minute},
	CategoryDomainAnalysis: {Requests: 20, Window: time.Minute},
}

var defaultLimit = Limit{Requests: 50, Window: time.Minute}

// CategoryLimit returns the configured limit for a category, or the default
// for unknown categories.
func CategoryLimit(category string) Limit {
	if l, ok := categoryLimits[category]; ok {
		return l
	}
	return defaultLimit
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, set when denied
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
	capacity   int
	window     time.Duration
}

// Limiter holds one token bucket per identity. Callers compose the identity
// as "category:subject" so categories never share a bucket. Safe for
// concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	checks  int
}

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// CheckLimit consumes one token for identity if available. A denied check
// consumes nothing and reports how many whole seconds remain until the next
// refill.
func (l *Limiter) CheckLimit(identity string, limit Limit) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.checks++
	if l.checks%256 == 0 {
		l.pruneLocked(now)
	}

	b := l.bucketLocked(identity, limit, now)
	l.refillLocked(b, now)
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return Result{
			Allowed:   true,
			Remaining: int(b.tokens),
			ResetAt:   b.lastRefill.Add(b.window),
		}
	}

	retryAfter := int(math.Ceil(b.lastRefill.Add(b.window).Sub(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Result{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    b.lastRefill.Add(b.window),
		RetryAfter: retryAfter,
	}
}

// GetStatus reports the bucket state for identity without consuming a token.
func (l *Limiter) GetStatus(identity string, limit Limit) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketLocked(identity, limit, now)
	l.refillLocked(b, now)

	return Result{
		Allowed:   b.tokens >= 1,
		Remaining: int(b.tokens),
		ResetAt:   b.lastRefill.Add(b.window),
	}
}

// Reset removes the bucket for identity, restoring it to full capacity on
// the next check.
func (l *Limiter) Reset(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, identity)
}

func (l *Limiter) bucketLocked(identity string, limit Limit, now time.Time) *bucket {
	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{
			tokens:     float64(limit.Requests),
			lastRefill: now,
			lastSeen:   now,
			capacity:   limit.Requests,
			window:     limit.Window,
		}
		l.buckets[identity] = b
	}
	return b
}

// refillLocked adds floor(elapsed/window * capacity) tokens, clamped at
// capacity. lastRefill only advances when tokens are actually added so
// fractional progress is not lost to flooring.
func (l *Limiter) refillLocked(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	add := math.Floor(elapsed.Seconds() / b.window.Seconds() * float64(b.capacity))
	if add < 1 {
		return
	}
	b.tokens = math.Min(float64(b.capacity), b.tokens+add)
	b.lastRefill = now
}

// pruneLocked drops buckets idle for more than two windows.
func (l *Limiter) pruneLocked(now time.Time) {
	for identity, b := range l.buckets {
		if now.Sub(b.lastSeen) > 2*b.window {
			delete(l.buckets, identity)
		}
	}
}
