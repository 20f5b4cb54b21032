// internal/health/monitor.go

// Package health tracks per-connection liveness. Any inbound traffic counts
// as a heartbeat; a periodic sweep evicts connections that have gone silent
// for too many intervals.
package health

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// HeartbeatInterval is the sweep period; a connection silent for one
	// full interval accrues a missed heartbeat.
	HeartbeatInterval = 30 * time.Second

	// MaxMissedHeartbeats is how many misses a connection survives.
	MaxMissedHeartbeats = 3

	// HighLatencyThreshold marks samples worth logging. High latency is an
	// observability signal, not an error.
	HighLatencyThreshold = 500 * time.Millisecond

	// latencyWindow bounds the retained samples per connection.
	latencyWindow = 1000
)

// Entry is the process-local liveness record for one connection.
type Entry struct {
	ConnID           uuid.UUID
	UserID           uuid.UUID
	LastActivity     time.Time
	MissedHeartbeats int
	MessageCount     int64
	latencies        []time.Duration
}

// Stats is an aggregate snapshot for operational visibility.
type Stats struct {
	TotalConnections int           `json:"totalConnections"`
	AvgLatency       time.Duration `json:"avgLatency"`
	HighLatencyCount int           `json:"highLatencyCount"`
	StaleConnections int           `json:"staleConnections"`
}

// Monitor owns the liveness table. One instance per process; tests build
// their own with a fake clock.
type Monitor struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry

	interval time.Duration
	now      func() time.Time
	log      *logrus.Logger
}

// NewMonitor returns a Monitor whose staleness interval matches the sweep
// cadence. A non-positive interval falls back to HeartbeatInterval.
func NewMonitor(log *logrus.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	return &Monitor{
		entries:  make(map[uuid.UUID]*Entry),
		interval: interval,
		now:      time.Now,
		log:      log,
	}
}

// SetClock overrides the monitor's clock. Test hook.
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// Track starts liveness tracking for a new connection.
func (m *Monitor) Track(connID, userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[connID] = &Entry{
		ConnID:       connID,
		UserID:       userID,
		LastActivity: m.now(),
	}
}

// Forget stops tracking a connection. Call on disconnect.
func (m *Monitor) Forget(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, connID)
}

// Touch records inbound traffic: resets the miss counter and bumps the
// message count.
func (m *Monitor) Touch(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[connID]
	if !ok {
		return
	}
	e.LastActivity = m.now()
	e.MissedHeartbeats = 0
	e.MessageCount++
}

// RecordLatency stores a round-trip sample, keeping only the most recent
// window. A sample also counts as activity.
func (m *Monitor) RecordLatency(connID uuid.UUID, rtt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[connID]
	if !ok {
		return
	}
	e.LastActivity = m.now()
	e.MissedHeartbeats = 0
	e.latencies = append(e.latencies, rtt)
	if len(e.latencies) > latencyWindow {
		e.latencies = e.latencies[len(e.latencies)-latencyWindow:]
	}
	if rtt > HighLatencyThreshold {
		m.log.WithFields(logrus.Fields{"conn": connID, "user": e.UserID, "rtt": rtt}).
			Warn("high connection latency")
	}
}

// Sweep increments the miss counter for every connection silent for at least
// one interval and returns the connections that crossed the threshold. Evicted
// entries are removed from the table, so a later sweep never returns the same
// connection twice. The caller is responsible for closing the sockets.
func (m *Monitor) Sweep(now time.Time) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted []uuid.UUID
	for id, e := range m.entries {
		if now.Sub(e.LastActivity) < m.interval {
			continue
		}
		e.MissedHeartbeats++
		if e.MissedHeartbeats >= MaxMissedHeartbeats {
			m.log.WithFields(logrus.Fields{"conn": id, "user": e.UserID, "missed": e.MissedHeartbeats}).
				Warn("evicting unresponsive connection")
			delete(m.entries, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Latencies returns a copy of the retained samples for a connection.
func (m *Monitor) Latencies(connID uuid.UUID) []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[connID]
	if !ok {
		return nil
	}
	out := make([]time.Duration, len(e.latencies))
	copy(out, e.latencies)
	return out
}

// Snapshot computes aggregate stats across all tracked connections.
func (m *Monitor) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{TotalConnections: len(m.entries)}
	var total time.Duration
	var samples int
	now := m.now()
	for _, e := range m.entries {
		for _, rtt := range e.latencies {
			total += rtt
			samples++
			if rtt > HighLatencyThreshold {
				s.HighLatencyCount++
			}
		}
		if now.Sub(e.LastActivity) >= m.interval {
			s.StaleConnections++
		}
	}
	if samples > 0 {
		s.AvgLatency = total / time.Duration(samples)
	}
	return s
}
