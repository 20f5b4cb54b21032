// internal/battle/engine.go

// Package battle owns the freeform dual-voting battle variant: both skaters
// film whatever they want each round and score each other's clips. Simpler
// than the trick-matching game, but it shares the same store contract and
// idempotency discipline.
package battle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dpayne5/skatevs/internal/apperr"
	"github.com/dpayne5/skatevs/internal/models"
	"github.com/dpayne5/skatevs/internal/store"
)

// DefaultRounds is the battle length when the creator does not choose one.
const DefaultRounds = 3

var errNoop = errors.New("no-op")

// Engine applies battle transitions against the durable store.
type Engine struct {
	store store.Store
	log   *logrus.Logger
	now   func() time.Time
}

// NewEngine builds an Engine on top of the given store.
func NewEngine(st store.Store, log *logrus.Logger) *Engine {
	return &Engine{store: st, log: log, now: time.Now}
}

// SetClock overrides the engine's clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// VoteResult reports the applied (or replayed) vote.
type VoteResult struct {
	Session   *models.BattleSession
	Duplicate bool
	// RoundSettled is true when this vote closed out the current round.
	RoundSettled bool
	// Completed is true when the battle finished on this vote.
	Completed bool
}

// Create persists a new battle. Open battles wait for any joiner; direct
// battles name the challenged user, who is the only one allowed to join.
func (e *Engine) Create(ctx context.Context, creatorID uuid.UUID, matchmaking models.Matchmaking, opponentID *uuid.UUID, rounds int) (*models.BattleSession, error) {
	switch matchmaking {
	case models.MatchmakingOpen:
		if opponentID != nil {
			return nil, apperr.New("INVALID_ARGUMENT", "open battles cannot name an opponent")
		}
	case models.MatchmakingDirect:
		if opponentID == nil || *opponentID == creatorID {
			return nil, apperr.New("INVALID_ARGUMENT", "direct battles must name another user")
		}
	default:
		return nil, apperr.New("INVALID_ARGUMENT", "unrecognized matchmaking mode %q", matchmaking)
	}
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	now := e.now()
	b := &models.BattleSession{
		ID:           uuid.New(),
		CreatorID:    creatorID,
		Matchmaking:  matchmaking,
		Rounds:       rounds,
		CurrentRound: 1,
		State:        models.BattleWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if matchmaking == models.MatchmakingDirect {
		target := *opponentID
		b.OpponentID = &target
	}
	if err := e.store.CreateBattle(ctx, b); err != nil {
		return nil, fmt.Errorf("create battle: %w", err)
	}
	e.log.WithFields(logrus.Fields{"battle": b.ID, "creator": creatorID, "matchmaking": matchmaking}).Info("battle created")
	return b, nil
}

// Join seats the opponent. Open battles take the first joiner; direct battles
// only admit the challenged user. Rejoining a battle you occupy is a no-op.
func (e *Engine) Join(ctx context.Context, battleID, joinerID uuid.UUID) (*models.BattleSession, error) {
	return e.store.UpdateBattle(ctx, battleID, func(b *models.BattleSession) error {
		if b.State == models.BattleCompleted {
			return apperr.ErrGameOver
		}
		if b.IsParticipant(joinerID) && b.State != models.BattleWaiting {
			return nil
		}
		switch b.Matchmaking {
		case models.MatchmakingDirect:
			if b.OpponentID == nil || *b.OpponentID != joinerID {
				if joinerID == b.CreatorID {
					return nil
				}
				return apperr.ErrNotInvited
			}
		case models.MatchmakingOpen:
			if joinerID == b.CreatorID {
				return nil
			}
			if b.OpponentID != nil && *b.OpponentID != joinerID {
				return apperr.ErrBattleFull
			}
			if b.OpponentID == nil {
				id := joinerID
				b.OpponentID = &id
			}
		}
		if b.State == models.BattleWaiting && b.OpponentID != nil && *b.OpponentID == joinerID {
			b.State = models.BattleActive
		}
		return nil
	})
}

// Ready records a participant's ready handshake. Voting cannot open until
// both sides are ready.
func (e *Engine) Ready(ctx context.Context, battleID, userID uuid.UUID) (*models.BattleSession, error) {
	return e.store.UpdateBattle(ctx, battleID, func(b *models.BattleSession) error {
		if !b.IsParticipant(userID) {
			return apperr.ErrNotParticipant
		}
		if b.State == models.BattleCompleted {
			return apperr.ErrGameOver
		}
		if userID == b.CreatorID {
			b.CreatorReady = true
		} else {
			b.OpponentReady = true
		}
		return nil
	})
}

// StartVoting opens the current round for votes once both participants are
// seated and ready.
func (e *Engine) StartVoting(ctx context.Context, battleID, callerID uuid.UUID) (*models.BattleSession, error) {
	return e.store.UpdateBattle(ctx, battleID, func(b *models.BattleSession) error {
		if !b.IsParticipant(callerID) {
			return apperr.ErrNotParticipant
		}
		if b.State != models.BattleActive {
			return apperr.New("BATTLE_NOT_ACTIVE", "battle is not active")
		}
		if !b.CreatorReady || !b.OpponentReady {
			return apperr.ErrNotReady
		}
		b.VotingOpen = true
		return nil
	})
}

// CastVote records the caller's call on the opponent's clip for the current
// round: clean scores the opponent 2, sketch 1, redo 0. One vote per
// participant per round; replays via idempotency key are duplicate no-ops.
// When both votes are in, the round settles; after the configured number of
// rounds the battle completes, ties going to the creator.
func (e *Engine) CastVote(ctx context.Context, battleID, voterID uuid.UUID, vote models.BattleVote, idempotencyKey string) (*VoteResult, error) {
	switch vote {
	case models.BattleVoteClean, models.BattleVoteSketch, models.BattleVoteRedo:
	default:
		return nil, apperr.ErrInvalidVote
	}
	res := &VoteResult{}
	session, err := e.store.UpdateBattle(ctx, battleID, func(b *models.BattleSession) error {
		if !b.IsParticipant(voterID) {
			return apperr.ErrNotParticipant
		}
		// The replay check runs before the state gates: settling a round
		// closes voting (and the last round completes the battle), and a
		// retry of exactly that vote must still be answered as a duplicate.
		if _, dup := b.LookupProcessed(idempotencyKey); dup {
			res.Duplicate = true
			return errNoop
		}
		if b.State == models.BattleCompleted {
			return apperr.ErrGameOver
		}
		if !b.VotingOpen {
			return apperr.New("VOTING_CLOSED", "voting has not been opened for this round")
		}

		v := vote
		if voterID == b.CreatorID {
			if b.CreatorVote != nil {
				return apperr.ErrAlreadyVoted
			}
			b.CreatorVote = &v
		} else {
			if b.OpponentVote != nil {
				return apperr.ErrAlreadyVoted
			}
			b.OpponentVote = &v
		}
		b.MarkProcessed(idempotencyKey)

		if b.CreatorVote != nil && b.OpponentVote != nil {
			// The creator's vote scores the opponent's clip, and vice versa.
			b.Score.Opponent += votePoints(*b.CreatorVote)
			b.Score.Creator += votePoints(*b.OpponentVote)
			b.CreatorVote = nil
			b.OpponentVote = nil
			res.RoundSettled = true

			if b.CurrentRound >= b.Rounds {
				b.State = models.BattleCompleted
				b.VotingOpen = false
				winner := b.CreatorID
				if b.OpponentID != nil && b.Score.Opponent > b.Score.Creator {
					winner = *b.OpponentID
				}
				// Ties go to the creator.
				b.WinnerID = &winner
				res.Completed = true
			} else {
				b.CurrentRound++
				b.VotingOpen = false
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoop) {
		return nil, err
	}
	if errors.Is(err, errNoop) {
		if session, err = e.store.GetBattle(ctx, battleID); err != nil {
			return nil, err
		}
	}
	res.Session = session
	return res, nil
}

// Get returns the current battle state.
func (e *Engine) Get(ctx context.Context, battleID uuid.UUID) (*models.BattleSession, error) {
	return e.store.GetBattle(ctx, battleID)
}

func votePoints(v models.BattleVote) int {
	switch v {
	case models.BattleVoteClean:
		return 2
	case models.BattleVoteSketch:
		return 1
	}
	return 0
}
