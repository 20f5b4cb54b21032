// internal/ratelimit/limiter_test.go
package ratelimit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiter() (*Limiter, *time.Time) {
	l := NewLimiter(nil)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func TestBurstThenRejected(t *testing.T) {
	l, _ := testLimiter()
	conn := uuid.New()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(conn, ClassTrickSubmit), "burst call %d", i)
	}
	assert.False(t, l.Allow(conn, ClassTrickSubmit))
}

func TestRefillOverTime(t *testing.T) {
	l, now := testLimiter()
	conn := uuid.New()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(conn, ClassTrickSubmit))
	}
	require.False(t, l.Allow(conn, ClassTrickSubmit))

	// 6/min refill: ten seconds buys one token.
	*now = now.Add(10 * time.Second)
	assert.True(t, l.Allow(conn, ClassTrickSubmit))
	assert.False(t, l.Allow(conn, ClassTrickSubmit))
}

func TestRefillCapsAtBurst(t *testing.T) {
	l, now := testLimiter()
	conn := uuid.New()

	require.True(t, l.Allow(conn, ClassTrickSubmit))

	// A long idle stretch refills to the burst ceiling, not beyond.
	*now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(conn, ClassTrickSubmit), "call %d", i)
	}
	assert.False(t, l.Allow(conn, ClassTrickSubmit))
}

func TestClassesAreIndependent(t *testing.T) {
	l, _ := testLimiter()
	conn := uuid.New()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(conn, ClassTrickSubmit))
	}
	require.False(t, l.Allow(conn, ClassTrickSubmit))

	// Exhausting tricks leaves voting untouched.
	assert.True(t, l.Allow(conn, ClassVote))
}

func TestConnectionsAreIndependent(t *testing.T) {
	l, _ := testLimiter()
	a := uuid.New()
	b := uuid.New()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(a, ClassTrickSubmit))
	}
	require.False(t, l.Allow(a, ClassTrickSubmit))
	assert.True(t, l.Allow(b, ClassTrickSubmit))
}

func TestUnknownClassAlwaysPasses(t *testing.T) {
	l, _ := testLimiter()
	conn := uuid.New()
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow(conn, "unlimited"))
	}
}

func TestRemoveConnectionResetsBuckets(t *testing.T) {
	l, _ := testLimiter()
	conn := uuid.New()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(conn, ClassTrickSubmit))
	}
	require.False(t, l.Allow(conn, ClassTrickSubmit))

	l.RemoveConnection(conn)
	assert.True(t, l.Allow(conn, ClassTrickSubmit))
}
