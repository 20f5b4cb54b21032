// internal/game/engine_test.go
package game

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpayne5/skatevs/internal/apperr"
	"github.com/dpayne5/skatevs/internal/models"
	"github.com/dpayne5/skatevs/internal/store"
)

func testEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	st := store.NewMemoryStore()
	return NewEngine(st, log), st
}

// newActiveGame creates a two-player active game and returns it with both ids.
func newActiveGame(t *testing.T, e *Engine) (*models.GameSession, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	creator := uuid.New()
	joiner := uuid.New()
	g, err := e.Create(ctx, creator, "spot-1", 2)
	require.NoError(t, err)
	g, err = e.Join(ctx, g.ID, joiner)
	require.NoError(t, err)
	require.Equal(t, models.GameActive, g.Status)
	return g, creator, joiner
}

func TestCreateAndJoin(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	creator := uuid.New()

	g, err := e.Create(ctx, creator, "dtla-rail", 2)
	require.NoError(t, err)
	assert.Equal(t, models.GameWaiting, g.Status)
	assert.Equal(t, creator, g.CurrentAttacker)
	assert.Equal(t, creator, g.CurrentTurn)
	assert.Equal(t, models.PhaseAttackerRecording, g.TurnPhase)
	assert.Equal(t, 1, g.RoundNumber)

	joiner := uuid.New()
	g, err = e.Join(ctx, g.ID, joiner)
	require.NoError(t, err)
	assert.Equal(t, models.GameActive, g.Status)
	assert.Equal(t, joiner, g.Player2ID)

	// Joining again is a no-op.
	again, err := e.Join(ctx, g.ID, joiner)
	require.NoError(t, err)
	assert.Equal(t, joiner, again.Player2ID)

	// A third player is turned away.
	_, err = e.Join(ctx, g.ID, uuid.New())
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "GAME_FULL", ae.Code)
}

func TestCreateRejectsNonHeadToHead(t *testing.T) {
	e, _ := testEngine(t)
	_, err := e.Create(context.Background(), uuid.New(), "", 4)
	require.Error(t, err)
}

func TestSubmitTrickBeforeJoinRejected(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	creator := uuid.New()
	g, err := e.Create(ctx, creator, "", 2)
	require.NoError(t, err)

	_, err = e.SubmitTrick(ctx, g.ID, creator, TrickSubmission{
		ClipKey: "clips/a.mp4", TrickName: "kickflip", SetTrick: true, IdempotencyKey: "k1",
	})
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "GAME_NOT_STARTED", ae.Code)
}

// Full round: attacker sets a kickflip, defender uploads a match attempt, both
// vote bailed, defender takes the S and the attacker keeps the set.
func TestSetMatchJudgeBailedRound(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	setRes, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "clips/set.mp4", TrickName: "kickflip", SetTrick: true, IdempotencyKey: "set-1",
	})
	require.NoError(t, err)
	assert.False(t, setRes.Duplicate)
	assert.Equal(t, models.PhaseDefenderRecording, setRes.Session.TurnPhase)
	assert.Equal(t, defender, setRes.Session.CurrentTurn)

	matchRes, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{
		ClipKey: "clips/match.mp4", IdempotencyKey: "match-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PhaseJudging, matchRes.Session.TurnPhase)
	require.NotNil(t, matchRes.Session.VoteDeadline)

	v1, err := e.SubmitVote(ctx, g.ID, matchRes.MoveID, attacker, models.VoteBailed, "vote-a-1")
	require.NoError(t, err)
	assert.False(t, v1.Resolved)

	v2, err := e.SubmitVote(ctx, g.ID, matchRes.MoveID, defender, models.VoteBailed, "vote-d-1")
	require.NoError(t, err)
	require.True(t, v2.Resolved)

	s := v2.Session
	assert.Equal(t, "S", s.LettersFor(defender))
	assert.Equal(t, "", s.LettersFor(attacker))
	assert.Equal(t, attacker, s.CurrentAttacker)
	assert.Equal(t, attacker, s.CurrentTurn)
	assert.Equal(t, models.PhaseAttackerRecording, s.TurnPhase)
	assert.Equal(t, 2, s.RoundNumber)
	assert.Nil(t, s.VoteDeadline)

	move := s.MoveByID(matchRes.MoveID)
	require.NotNil(t, move)
	assert.Equal(t, models.ResultBailed, move.Result)
	assert.False(t, move.TimedOut)
}

// A landed match swaps the roles without handing out a letter.
func TestLandedMatchSwapsRoles(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	_, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "heelflip", SetTrick: true, IdempotencyKey: "s1",
	})
	require.NoError(t, err)
	matchRes, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
	require.NoError(t, err)

	_, err = e.SubmitVote(ctx, g.ID, matchRes.MoveID, defender, models.VoteLanded, "v1")
	require.NoError(t, err)
	res, err := e.SubmitVote(ctx, g.ID, matchRes.MoveID, attacker, models.VoteLanded, "v2")
	require.NoError(t, err)
	require.True(t, res.Resolved)

	s := res.Session
	assert.Equal(t, defender, s.CurrentAttacker)
	assert.Equal(t, defender, s.CurrentTurn)
	assert.Equal(t, 1, s.RoundNumber)
	assert.Empty(t, s.LettersFor(attacker))
	assert.Empty(t, s.LettersFor(defender))
}

// Split decisions resolve in the defender's favor, regardless of which side
// voted landed.
func TestDisagreementFavorsDefender(t *testing.T) {
	cases := []struct {
		name         string
		attackerVote models.Vote
		defenderVote models.Vote
	}{
		{"attacker says bailed", models.VoteBailed, models.VoteLanded},
		{"defender says bailed", models.VoteLanded, models.VoteBailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := testEngine(t)
			ctx := context.Background()
			g, attacker, defender := newActiveGame(t, e)

			_, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
				ClipKey: "c1", TrickName: "tre flip", SetTrick: true, IdempotencyKey: "s1",
			})
			require.NoError(t, err)
			matchRes, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
			require.NoError(t, err)

			_, err = e.SubmitVote(ctx, g.ID, matchRes.MoveID, attacker, tc.attackerVote, "v1")
			require.NoError(t, err)
			res, err := e.SubmitVote(ctx, g.ID, matchRes.MoveID, defender, tc.defenderVote, "v2")
			require.NoError(t, err)
			require.True(t, res.Resolved)

			move := res.Session.MoveByID(matchRes.MoveID)
			assert.Equal(t, models.ResultLanded, move.Result)
			assert.Empty(t, res.Session.LettersFor(defender))
		})
	}
}

// Vote order must not matter: defender-first then attacker-first reach the
// same resolved state.
func TestVoteOrderCommutes(t *testing.T) {
	run := func(t *testing.T, defenderFirst bool) *models.GameSession {
		e, _ := testEngine(t)
		ctx := context.Background()
		g, attacker, defender := newActiveGame(t, e)

		_, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
			ClipKey: "c1", TrickName: "nollie", SetTrick: true, IdempotencyKey: "s1",
		})
		require.NoError(t, err)
		matchRes, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
		require.NoError(t, err)

		first, second := attacker, defender
		if defenderFirst {
			first, second = defender, attacker
		}
		_, err = e.SubmitVote(ctx, g.ID, matchRes.MoveID, first, models.VoteBailed, "v1")
		require.NoError(t, err)
		res, err := e.SubmitVote(ctx, g.ID, matchRes.MoveID, second, models.VoteBailed, "v2")
		require.NoError(t, err)
		require.True(t, res.Resolved)
		return res.Session
	}

	a := run(t, false)
	b := run(t, true)
	assert.Equal(t, a.TurnPhase, b.TurnPhase)
	assert.Equal(t, a.RoundNumber, b.RoundNumber)
	assert.Equal(t, a.Player2Letters, b.Player2Letters)
	assert.Equal(t, a.Moves[len(a.Moves)-1].Result, b.Moves[len(b.Moves)-1].Result)
}

func TestDoubleVoteSameSideRejected(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	_, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "varial", SetTrick: true, IdempotencyKey: "s1",
	})
	require.NoError(t, err)
	matchRes, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
	require.NoError(t, err)

	_, err = e.SubmitVote(ctx, g.ID, matchRes.MoveID, attacker, models.VoteBailed, "v1")
	require.NoError(t, err)
	// Same side, fresh key: must be rejected, not treated as a retry.
	_, err = e.SubmitVote(ctx, g.ID, matchRes.MoveID, attacker, models.VoteLanded, "v1-changed-mind")
	require.ErrorIs(t, err, apperr.ErrAlreadyVoted)
}

// Replaying a submission N times applies it exactly once and always answers
// with the original move id.
func TestTrickSubmissionIdempotent(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, attacker, _ := newActiveGame(t, e)

	first, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "kickflip", SetTrick: true, IdempotencyKey: "retry-me",
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		replay, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
			ClipKey: "c1", TrickName: "kickflip", SetTrick: true, IdempotencyKey: "retry-me",
		})
		require.NoError(t, err)
		assert.True(t, replay.Duplicate)
		assert.Equal(t, first.MoveID, replay.MoveID)
	}

	s, err := e.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, s.Moves, 1)
}

func TestVoteIdempotentAfterResolution(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	_, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "impossible", SetTrick: true, IdempotencyKey: "s1",
	})
	require.NoError(t, err)
	matchRes, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
	require.NoError(t, err)

	_, err = e.SubmitVote(ctx, g.ID, matchRes.MoveID, attacker, models.VoteBailed, "va")
	require.NoError(t, err)
	_, err = e.SubmitVote(ctx, g.ID, matchRes.MoveID, defender, models.VoteBailed, "vd")
	require.NoError(t, err)

	// The retry of an already-applied vote succeeds as a duplicate even though
	// the judging phase is over.
	replay, err := e.SubmitVote(ctx, g.ID, matchRes.MoveID, defender, models.VoteBailed, "vd")
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, matchRes.MoveID, replay.MoveID)
}

// The ring buffer keeps the most recent 50 keys; the oldest fall out and their
// retries are no longer recognized.
func TestIdempotencyRingEviction(t *testing.T) {
	g := &models.GameSession{ID: uuid.New(), Player1ID: uuid.New(), Player2ID: uuid.New()}
	for i := 0; i < 60; i++ {
		g.MarkProcessed(fmt.Sprintf("key-%d", i), uuid.New())
	}
	assert.Len(t, g.ProcessedKeys, models.MaxProcessedKeys)

	for i := 0; i < 10; i++ {
		_, ok := g.LookupProcessed(fmt.Sprintf("key-%d", i))
		assert.False(t, ok, "key-%d should have been evicted", i)
	}
	for i := 10; i < 60; i++ {
		_, ok := g.LookupProcessed(fmt.Sprintf("key-%d", i))
		assert.True(t, ok, "key-%d should be retained", i)
	}
}

// Fifth letter ends the game in the attacker's favor.
func TestFifthLetterCompletesGame(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	_, err := st.UpdateGame(ctx, g.ID, func(s *models.GameSession) error {
		if s.Player2ID == defender {
			s.Player2Letters = "SKAT"
		} else {
			s.Player1Letters = "SKAT"
		}
		return nil
	})
	require.NoError(t, err)

	_, err = e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "laser flip", SetTrick: true, IdempotencyKey: "s1",
	})
	require.NoError(t, err)
	matchRes, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
	require.NoError(t, err)

	_, err = e.SubmitVote(ctx, g.ID, matchRes.MoveID, attacker, models.VoteBailed, "va")
	require.NoError(t, err)
	res, err := e.SubmitVote(ctx, g.ID, matchRes.MoveID, defender, models.VoteBailed, "vd")
	require.NoError(t, err)

	s := res.Session
	assert.Equal(t, models.GameCompleted, s.Status)
	assert.Equal(t, "SKATE", s.LettersFor(defender))
	require.NotNil(t, s.WinnerID)
	assert.Equal(t, attacker, *s.WinnerID)
	assert.Equal(t, models.PhaseRoundComplete, s.TurnPhase)

	// Everything after completion bounces.
	_, err = e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c3", TrickName: "x", SetTrick: true, IdempotencyKey: "s2",
	})
	require.ErrorIs(t, err, apperr.ErrGameOver)
}

// A retry of the exact vote that handed out the fifth letter arrives against
// a completed game; it must be answered as a duplicate, not GAME_OVER.
func TestVoteReplayAfterGameCompleted(t *testing.T) {
	e, st := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	_, err := st.UpdateGame(ctx, g.ID, func(s *models.GameSession) error {
		if s.Player2ID == defender {
			s.Player2Letters = "SKAT"
		} else {
			s.Player1Letters = "SKAT"
		}
		return nil
	})
	require.NoError(t, err)

	_, err = e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "hardflip", SetTrick: true, IdempotencyKey: "s1",
	})
	require.NoError(t, err)
	matchRes, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
	require.NoError(t, err)

	_, err = e.SubmitVote(ctx, g.ID, matchRes.MoveID, attacker, models.VoteBailed, "va")
	require.NoError(t, err)
	completing, err := e.SubmitVote(ctx, g.ID, matchRes.MoveID, defender, models.VoteBailed, "vd")
	require.NoError(t, err)
	require.Equal(t, models.GameCompleted, completing.Session.Status)

	replay, err := e.SubmitVote(ctx, g.ID, matchRes.MoveID, defender, models.VoteBailed, "vd")
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, matchRes.MoveID, replay.MoveID)
	assert.Equal(t, models.GameCompleted, replay.Session.Status)

	// A match-attempt retry against the finished game replays too.
	trickReplay, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
	require.NoError(t, err)
	assert.True(t, trickReplay.Duplicate)
	assert.Equal(t, matchRes.MoveID, trickReplay.MoveID)
}

// A trick retry that races a forfeit still gets its duplicate answer.
func TestTrickReplayAfterForfeit(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	first, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "kickflip", SetTrick: true, IdempotencyKey: "s1",
	})
	require.NoError(t, err)

	_, err = e.Forfeit(ctx, g.ID, defender, "quit-1")
	require.NoError(t, err)

	replay, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "kickflip", SetTrick: true, IdempotencyKey: "s1",
	})
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, first.MoveID, replay.MoveID)
	assert.Equal(t, models.GameAbandoned, replay.Session.Status)
}

// A pass retry after the game ends stays a no-op instead of GAME_OVER.
func TestPassReplayAfterGameEnds(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	_, err := e.Pass(ctx, g.ID, attacker, "pass-1")
	require.NoError(t, err)
	_, err = e.Forfeit(ctx, g.ID, attacker, "quit-1")
	require.NoError(t, err)

	s, err := e.Pass(ctx, g.ID, attacker, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, models.GameAbandoned, s.Status)
	require.NotNil(t, s.WinnerID)
	assert.Equal(t, defender, *s.WinnerID)
}

func TestAutoResolveTimeout(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := base
	e.SetClock(func() time.Time { return now })

	g, attacker, defender := newActiveGame(t, e)

	// Nothing to resolve while no judging phase is open.
	s, err := e.AutoResolveTimeout(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "big spin", SetTrick: true, IdempotencyKey: "s1",
	})
	require.NoError(t, err)
	matchRes, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
	require.NoError(t, err)

	// Deadline not yet elapsed.
	now = base.Add(30 * time.Second)
	s, err = e.AutoResolveTimeout(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, s)

	now = base.Add(VoteWindow + time.Second)
	s, err = e.AutoResolveTimeout(ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, s)

	move := s.MoveByID(matchRes.MoveID)
	assert.Equal(t, models.ResultLanded, move.Result)
	assert.True(t, move.TimedOut)
	assert.Equal(t, defender, s.CurrentAttacker)
	assert.Nil(t, s.VoteDeadline)

	// Sweep retry after resolution is a no-op.
	s, err = e.AutoResolveTimeout(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, s)
}

// A vote that lands before the sweep fires wins the race: the sweep re-checks
// and backs off.
func TestSweepBacksOffAfterVotesResolve(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := base
	e.SetClock(func() time.Time { return now })

	g, attacker, defender := newActiveGame(t, e)
	_, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "shove it", SetTrick: true, IdempotencyKey: "s1",
	})
	require.NoError(t, err)
	matchRes, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
	require.NoError(t, err)

	_, err = e.SubmitVote(ctx, g.ID, matchRes.MoveID, attacker, models.VoteBailed, "va")
	require.NoError(t, err)
	res, err := e.SubmitVote(ctx, g.ID, matchRes.MoveID, defender, models.VoteBailed, "vd")
	require.NoError(t, err)
	require.True(t, res.Resolved)

	now = base.Add(VoteWindow + time.Minute)
	s, err := e.AutoResolveTimeout(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, s)

	final, err := e.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultBailed, final.MoveByID(matchRes.MoveID).Result)
}

func TestMarkReminderFiresOnce(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	_, err := e.SubmitTrick(ctx, g.ID, attacker, TrickSubmission{
		ClipKey: "c1", TrickName: "fs flip", SetTrick: true, IdempotencyKey: "s1",
	})
	require.NoError(t, err)
	_, err = e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{ClipKey: "c2", IdempotencyKey: "m1"})
	require.NoError(t, err)

	s, sent, err := e.MarkReminder(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, sent)
	require.NotNil(t, s)
	assert.True(t, s.ReminderSent)

	_, sent, err = e.MarkReminder(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestPassHandsOverTheSet(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	s, err := e.Pass(ctx, g.ID, attacker, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, defender, s.CurrentAttacker)
	assert.Equal(t, defender, s.CurrentTurn)
	assert.Equal(t, models.PhaseAttackerRecording, s.TurnPhase)

	// Retrying the pass does not flip the roles back.
	s, err = e.Pass(ctx, g.ID, attacker, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, defender, s.CurrentAttacker)

	// The new defender cannot pass mid set.
	_, err = e.Pass(ctx, g.ID, attacker, "pass-2")
	require.ErrorIs(t, err, apperr.ErrWrongPhase)
}

func TestForfeit(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, attacker, defender := newActiveGame(t, e)

	s, err := e.Forfeit(ctx, g.ID, attacker, "quit-1")
	require.NoError(t, err)
	assert.Equal(t, models.GameAbandoned, s.Status)
	require.NotNil(t, s.WinnerID)
	assert.Equal(t, defender, *s.WinnerID)

	// Forfeiting a finished game stays a no-op, whatever the key.
	s, err = e.Forfeit(ctx, g.ID, attacker, "quit-1")
	require.NoError(t, err)
	assert.Equal(t, models.GameAbandoned, s.Status)
	s, err = e.Forfeit(ctx, g.ID, defender, "quit-2")
	require.NoError(t, err)
	assert.Equal(t, defender, *s.WinnerID)
}

func TestNonParticipantRejected(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, _, _ := newActiveGame(t, e)
	stranger := uuid.New()

	_, err := e.SubmitTrick(ctx, g.ID, stranger, TrickSubmission{
		ClipKey: "c", TrickName: "t", SetTrick: true, IdempotencyKey: "k",
	})
	require.ErrorIs(t, err, apperr.ErrNotParticipant)

	_, err = e.Forfeit(ctx, g.ID, stranger, "k2")
	require.ErrorIs(t, err, apperr.ErrNotParticipant)
}

func TestOutOfTurnSubmissionRejected(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	g, _, defender := newActiveGame(t, e)

	_, err := e.SubmitTrick(ctx, g.ID, defender, TrickSubmission{
		ClipKey: "c", TrickName: "t", SetTrick: true, IdempotencyKey: "k",
	})
	require.ErrorIs(t, err, apperr.ErrNotYourTurn)
}
