// internal/ratelimit/limiter.go

// Package ratelimit is the per-connection, per-event-class admission gate.
// It sits in front of every handler and knows nothing about game state: a
// rejected event performs no mutation at all.
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Class names group events that share a ceiling.
const (
	ClassTrickSubmit = "trick_submit"
	ClassVote        = "vote"
	ClassRoom        = "room"
	ClassSession     = "session" // create/join/forfeit/pass
	ClassPing        = "ping"
)

// Limit is a token bucket shape: Burst tokens, refilled at PerMinute.
type Limit struct {
	Burst     int
	PerMinute int
}

// DefaultLimits are the per-class ceilings applied when no override is given.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		ClassTrickSubmit: {Burst: 3, PerMinute: 6},
		ClassVote:        {Burst: 5, PerMinute: 10},
		ClassRoom:        {Burst: 10, PerMinute: 20},
		ClassSession:     {Burst: 5, PerMinute: 10},
		ClassPing:        {Burst: 10, PerMinute: 60},
	}
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter holds one bucket per (connection, class). State lives and dies with
// the connection; nothing is shared across processes.
type Limiter struct {
	mu     sync.Mutex
	conns  map[uuid.UUID]map[string]*bucket
	limits map[string]Limit
	now    func() time.Time
}

// NewLimiter builds a Limiter with the given per-class limits; nil means
// DefaultLimits.
func NewLimiter(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{
		conns:  make(map[uuid.UUID]map[string]*bucket),
		limits: limits,
		now:    time.Now,
	}
}

// SetClock overrides the limiter's clock. Test hook.
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// Allow takes a token for the event class on this connection. Classes with no
// configured limit always pass.
func (l *Limiter) Allow(connID uuid.UUID, class string) bool {
	limit, ok := l.limits[class]
	if !ok {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	buckets := l.conns[connID]
	if buckets == nil {
		buckets = make(map[string]*bucket)
		l.conns[connID] = buckets
	}
	now := l.now()
	b := buckets[class]
	if b == nil {
		b = &bucket{tokens: float64(limit.Burst), lastRefill: now}
		buckets[class] = b
	}

	refill := now.Sub(b.lastRefill).Minutes() * float64(limit.PerMinute)
	if refill > 0 {
		b.tokens = minFloat(float64(limit.Burst), b.tokens+refill)
		b.lastRefill = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RemoveConnection drops all buckets for a connection. Call on disconnect.
func (l *Limiter) RemoveConnection(connID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, connID)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
