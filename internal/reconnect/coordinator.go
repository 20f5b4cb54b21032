// internal/reconnect/coordinator.go

// Package reconnect keeps a disconnected participant's game alive for a grace
// window instead of forfeiting on the spot. If the same identity reconnects
// in time nothing happens; if the window lapses, the game is forfeited
// exactly once through the engine's idempotency mechanism.
package reconnect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GraceWindow is how long a disconnected participant has to come back.
const GraceWindow = 120 * time.Second

// ForfeitFunc is the engine's forfeit path. The idempotency key makes the
// call safe to repeat.
type ForfeitFunc func(ctx context.Context, gameID, userID uuid.UUID, idempotencyKey string) error

type marker struct {
	gameID uuid.UUID
	// expiresAt is set on disconnect and cleared on reconnect.
	expiresAt *time.Time
}

// Coordinator tracks one active-game marker per user. Process-local, like
// the rest of the connection state.
type Coordinator struct {
	mu      sync.Mutex
	markers map[uuid.UUID]*marker

	grace   time.Duration
	forfeit ForfeitFunc
	log     *logrus.Logger
	now     func() time.Time
}

// NewCoordinator wires the coordinator to the engine's forfeit path.
func NewCoordinator(forfeit ForfeitFunc, log *logrus.Logger) *Coordinator {
	return &Coordinator{
		markers: make(map[uuid.UUID]*marker),
		grace:   GraceWindow,
		forfeit: forfeit,
		log:     log,
		now:     time.Now,
	}
}

// SetClock overrides the coordinator's clock. Test hook.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// TrackActive records that the user is in an active game. Called when a game
// activates or when a participant's connection attaches to one.
func (c *Coordinator) TrackActive(userID, gameID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers[userID] = &marker{gameID: gameID}
}

// Clear drops the marker, e.g. when the game reaches a terminal state.
func (c *Coordinator) Clear(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markers, userID)
}

// HandleDisconnect starts the grace countdown for the user's active game, if
// any. The game is not forfeited yet.
func (c *Coordinator) HandleDisconnect(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markers[userID]
	if !ok || m.expiresAt != nil {
		return
	}
	deadline := c.now().Add(c.grace)
	m.expiresAt = &deadline
	c.log.WithFields(logrus.Fields{"user": userID, "game": m.gameID, "deadline": deadline}).
		Info("participant disconnected, grace window started")
}

// HandleReconnect refreshes the marker when the same identity comes back
// before expiry. Returns the game id and true if a countdown was cancelled.
func (c *Coordinator) HandleReconnect(userID uuid.UUID) (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markers[userID]
	if !ok {
		return uuid.Nil, false
	}
	hadCountdown := m.expiresAt != nil
	m.expiresAt = nil
	if hadCountdown {
		c.log.WithFields(logrus.Fields{"user": userID, "game": m.gameID}).
			Info("participant reconnected inside grace window")
	}
	return m.gameID, hadCountdown
}

// Sweep forfeits every game whose grace window lapsed without a reconnect.
// Markers are removed before the forfeit call, and the engine's duplicate-key
// check backs that up, so the forfeit fires at most once per disconnect.
func (c *Coordinator) Sweep(ctx context.Context, now time.Time) {
	type expired struct {
		userID uuid.UUID
		gameID uuid.UUID
	}
	c.mu.Lock()
	var lapsed []expired
	for userID, m := range c.markers {
		if m.expiresAt != nil && !m.expiresAt.After(now) {
			lapsed = append(lapsed, expired{userID: userID, gameID: m.gameID})
			delete(c.markers, userID)
		}
	}
	c.mu.Unlock()

	for _, ex := range lapsed {
		key := fmt.Sprintf("grace-forfeit:%s:%s", ex.gameID, ex.userID)
		if err := c.forfeit(ctx, ex.gameID, ex.userID, key); err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{"user": ex.userID, "game": ex.gameID}).
				Error("grace window forfeit failed")
			continue
		}
		c.log.WithFields(logrus.Fields{"user": ex.userID, "game": ex.gameID}).
			Info("grace window expired, game forfeited")
	}
}
