// internal/reconnect/coordinator_test.go
package reconnect

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forfeitRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (f *forfeitRecorder) fn(_ context.Context, gameID, userID uuid.UUID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return nil
}

func (f *forfeitRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testCoordinator() (*Coordinator, *forfeitRecorder, *time.Time) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	rec := &forfeitRecorder{}
	c := NewCoordinator(rec.fn, log)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })
	return c, rec, &now
}

func TestGraceExpiryForfeitsExactlyOnce(t *testing.T) {
	c, rec, now := testCoordinator()
	ctx := context.Background()
	user := uuid.New()
	game := uuid.New()

	c.TrackActive(user, game)
	c.HandleDisconnect(user)

	// Inside the window: nothing fires.
	c.Sweep(ctx, now.Add(GraceWindow-time.Second))
	assert.Equal(t, 0, rec.count())

	// Window lapsed: exactly one forfeit, then silence.
	c.Sweep(ctx, now.Add(GraceWindow))
	require.Equal(t, 1, rec.count())
	c.Sweep(ctx, now.Add(GraceWindow+time.Hour))
	assert.Equal(t, 1, rec.count())

	wantKey := "grace-forfeit:" + game.String() + ":" + user.String()
	assert.Equal(t, wantKey, rec.calls[0])
}

func TestReconnectCancelsCountdown(t *testing.T) {
	c, rec, now := testCoordinator()
	ctx := context.Background()
	user := uuid.New()
	game := uuid.New()

	c.TrackActive(user, game)
	c.HandleDisconnect(user)

	gotGame, hadCountdown := c.HandleReconnect(user)
	assert.Equal(t, game, gotGame)
	assert.True(t, hadCountdown)

	c.Sweep(ctx, now.Add(2*GraceWindow))
	assert.Equal(t, 0, rec.count())

	// A later disconnect starts a fresh window.
	c.HandleDisconnect(user)
	c.Sweep(ctx, now.Add(GraceWindow))
	assert.Equal(t, 1, rec.count())
}

func TestRepeatDisconnectKeepsOriginalDeadline(t *testing.T) {
	c, rec, now := testCoordinator()
	ctx := context.Background()
	user := uuid.New()
	c.TrackActive(user, uuid.New())

	c.HandleDisconnect(user)
	*now = now.Add(GraceWindow - time.Second)
	// A second disconnect signal (e.g. a stale socket closing) must not push
	// the deadline out.
	c.HandleDisconnect(user)

	c.Sweep(ctx, now.Add(time.Second))
	assert.Equal(t, 1, rec.count())
}

func TestDisconnectWithoutActiveGame(t *testing.T) {
	c, rec, _ := testCoordinator()
	ctx := context.Background()

	c.HandleDisconnect(uuid.New())
	c.Sweep(ctx, time.Now().Add(time.Hour))
	assert.Equal(t, 0, rec.count())

	game, hadCountdown := c.HandleReconnect(uuid.New())
	assert.Equal(t, uuid.Nil, game)
	assert.False(t, hadCountdown)
}

func TestClearDropsMarker(t *testing.T) {
	c, rec, now := testCoordinator()
	ctx := context.Background()
	user := uuid.New()

	c.TrackActive(user, uuid.New())
	c.HandleDisconnect(user)
	c.Clear(user)

	c.Sweep(ctx, now.Add(2*GraceWindow))
	assert.Equal(t, 0, rec.count())
}

func TestConnectedUserNeverForfeited(t *testing.T) {
	c, rec, now := testCoordinator()
	ctx := context.Background()
	user := uuid.New()

	// Active game, no disconnect: the marker has no deadline.
	c.TrackActive(user, uuid.New())
	c.Sweep(ctx, now.Add(24*time.Hour))
	assert.Equal(t, 0, rec.count())
}
