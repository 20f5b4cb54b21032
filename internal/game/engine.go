// internal/game/engine.go

// Package game owns the turn-based trick-battle state machine. All mutations
// run inside the store's transactional update; the engine holds no in-process
// locks and never assumes single-writer access to a session.
package game

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

// VoteWindow is how long both participants have to judge a match attempt
// before the sweep force-resolves it.
const VoteWindow = 60 * time.Second

// errNoop signals a mutator that decided the update should not happen. It
// never escapes the engine.
var errNoop = errors.New("no-op")

// Engine applies game transitions against the durable store.
type Engine struct {
	store store.Store
	log   *logrus.Logger

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewEngine builds an Engine on top of the given store.
func NewEngine(st store.Store, log *logrus.Logger) *Engine {
	return &Engine{store: st, log: log, now: time.Now}
}

// SetClock overrides the engine's clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// TrickSubmission is the validated input for SubmitTrick.
type TrickSubmission struct {
	ClipKey        string
	TrickName      string
	SetTrick       bool
	IdempotencyKey string
}

// TrickResult reports the applied (or replayed) submission.
type TrickResult struct {
	Session   *models.GameSession
	MoveID    uuid.UUID
	Duplicate bool
}

// VoteResult reports the applied (or replayed) vote.
type VoteResult struct {
	Session   *models.GameSession
	MoveID    uuid.UUID
	Duplicate bool
	// Resolved is true when this vote completed the judgment.
	Resolved bool
}

// Create persists a new waiting session with the creator seated as player 1.
func (e *Engine) Create(ctx context.Context, creatorID uuid.UUID, spotID string, maxPlayers int) (*models.GameSession, error) {
	if maxPlayers != 0 && maxPlayers != 2 {
		return nil, apperr.New("INVALID_ARGUMENT", "games are head-to-head; maxPlayers must be 2")
	}
	now := e.now()
	g := &models.GameSession{
		ID:              uuid.New(),
		SpotID:          spotID,
		Player1ID:       creatorID,
		CurrentAttacker: creatorID,
		CurrentTurn:     creatorID,
		TurnPhase:       models.PhaseAttackerRecording,
		RoundNumber:     1,
		Status:          models.GameWaiting,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.CreateGame(ctx, g); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	e.log.WithFields(logrus.Fields{"game": g.ID, "creator": creatorID}).Info("game created")
	return g, nil
}

// Join seats the second player and activates the game. The creator sets first.
// Joining a game you already occupy is a no-op that returns current state.
func (e *Engine) Join(ctx context.Context, gameID, joinerID uuid.UUID) (*models.GameSession, error) {
	return e.store.UpdateGame(ctx, gameID, func(g *models.GameSession) error {
		if g.Terminal() {
			return apperr.ErrGameOver
		}
		if g.IsParticipant(joinerID) {
			return nil
		}
		if g.Player2ID != uuid.Nil {
			return apperr.New("GAME_FULL", "game already has two players")
		}
		g.Player2ID = joinerID
		g.Status = models.GameActive
		return nil
	})
}

// SubmitTrick records the attacker's set clip or the defender's match attempt
// and advances the phase accordingly. Replays of an already-processed
// idempotency key return the original move id with no further mutation.
func (e *Engine) SubmitTrick(ctx context.Context, gameID, callerID uuid.UUID, in TrickSubmission) (*TrickResult, error) {
	res := &TrickResult{}
	session, err := e.store.UpdateGame(ctx, gameID, func(g *models.GameSession) error {
		if !g.IsParticipant(callerID) {
			return apperr.ErrNotParticipant
		}
		// Replay check precedes every state gate, including terminal: a
		// retry whose original submission ended the game still gets its
		// duplicate answer.
		if pk, dup := g.LookupProcessed(in.IdempotencyKey); dup {
			res.MoveID = pk.MoveID
			res.Duplicate = true
			return errNoop
		}
		if g.Terminal() {
			return apperr.ErrGameOver
		}
		if g.Status != models.GameActive {
			return apperr.New("GAME_NOT_STARTED", "waiting for an opponent to join")
		}
		if callerID != g.CurrentTurn {
			return apperr.ErrNotYourTurn
		}
		wantPhase := models.PhaseDefenderRecording
		if in.SetTrick {
			wantPhase = models.PhaseAttackerRecording
		}
		if g.TurnPhase != wantPhase {
			return apperr.ErrWrongPhase
		}

		move := models.Move{
			ID:             uuid.New(),
			PlayerID:       callerID,
			IdempotencyKey: in.IdempotencyKey,
			ClipKey:        in.ClipKey,
			CreatedAt:      e.now(),
		}
		if in.SetTrick {
			// The attacker only uploads a landed set, so the move needs no judgment.
			move.Type = models.MoveSet
			move.Result = models.ResultLanded
			move.TrickName = in.TrickName
			g.TurnPhase = models.PhaseDefenderRecording
			g.CurrentTurn = g.Opponent(callerID)
		} else {
			move.Type = models.MoveMatch
			move.Result = models.ResultPending
			deadline := e.now().Add(VoteWindow)
			g.VoteDeadline = &deadline
			g.ReminderSent = false
			g.TurnPhase = models.PhaseJudging
		}
		g.Moves = append(g.Moves, move)
		g.MarkProcessed(in.IdempotencyKey, move.ID)
		res.MoveID = move.ID
		return nil
	})
	if err != nil && !errors.Is(err, errNoop) {
		return nil, err
	}
	if errors.Is(err, errNoop) {
		if session, err = e.store.GetGame(ctx, gameID); err != nil {
			return nil, err
		}
	}
	res.Session = session
	return res, nil
}

// SubmitVote records one participant's judgment of the pending match attempt.
// Votes commute: whichever order the two votes arrive in, the resolved state
// is identical. Disagreement always resolves as landed.
func (e *Engine) SubmitVote(ctx context.Context, gameID, moveID, voterID uuid.UUID, vote models.Vote, idempotencyKey string) (*VoteResult, error) {
	if vote != models.VoteLanded && vote != models.VoteBailed {
		return nil, apperr.ErrInvalidVote
	}
	res := &VoteResult{}
	session, err := e.store.UpdateGame(ctx, gameID, func(g *models.GameSession) error {
		if !g.IsParticipant(voterID) {
			return apperr.ErrNotParticipant
		}
		// A retry of the vote that completed the game must come back as a
		// duplicate, so the replay check runs before the terminal gate.
		if pk, dup := g.LookupProcessed(idempotencyKey); dup {
			res.MoveID = pk.MoveID
			res.Duplicate = true
			return errNoop
		}
		if g.Terminal() {
			return apperr.ErrGameOver
		}
		move := g.MoveByID(moveID)
		if move == nil {
			return apperr.ErrMoveNotFound
		}
		if g.TurnPhase != models.PhaseJudging || move.Result != models.ResultPending {
			return apperr.ErrWrongPhase
		}

		v := vote
		if voterID == g.CurrentAttacker {
			if move.Votes.AttackerVote != nil {
				return apperr.ErrAlreadyVoted
			}
			move.Votes.AttackerVote = &v
		} else {
			if move.Votes.DefenderVote != nil {
				return apperr.ErrAlreadyVoted
			}
			move.Votes.DefenderVote = &v
		}
		g.MarkProcessed(idempotencyKey, move.ID)
		res.MoveID = move.ID

		if move.Votes.AttackerVote != nil && move.Votes.DefenderVote != nil {
			result := models.ResultLanded
			if *move.Votes.AttackerVote == *move.Votes.DefenderVote {
				result = models.MoveResult(*move.Votes.AttackerVote)
			}
			// Split decisions favor the defender: the attempt counts as landed.
			e.applyJudgment(g, move, result, false)
			res.Resolved = true
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoop) {
		return nil, err
	}
	if errors.Is(err, errNoop) {
		if session, err = e.store.GetGame(ctx, gameID); err != nil {
			return nil, err
		}
	}
	res.Session = session
	return res, nil
}

// AutoResolveTimeout force-resolves an expired judging phase as landed. It is
// invoked by the deadline sweep and returns (nil, nil) when there is nothing
// to do: the deadline re-check inside the transaction is what makes the sweep
// safe against a vote that resolved first.
func (e *Engine) AutoResolveTimeout(ctx context.Context, gameID uuid.UUID) (*models.GameSession, error) {
	session, err := e.store.UpdateGame(ctx, gameID, func(g *models.GameSession) error {
		if g.Terminal() || g.TurnPhase != models.PhaseJudging {
			return errNoop
		}
		if g.VoteDeadline == nil || e.now().Before(*g.VoteDeadline) {
			return errNoop
		}
		move := g.PendingMove()
		if move == nil {
			return errNoop
		}
		e.applyJudgment(g, move, models.ResultLanded, true)
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"game": gameID}).Info("judging phase auto-resolved on timeout")
	return session, nil
}

// MarkReminder sets the reminder flag for a judging phase nearing its
// deadline. Returns the session and true the first time, (nil, false) on
// every later call until a new deadline is set.
func (e *Engine) MarkReminder(ctx context.Context, gameID uuid.UUID) (*models.GameSession, bool, error) {
	session, err := e.store.UpdateGame(ctx, gameID, func(g *models.GameSession) error {
		if g.Terminal() || g.TurnPhase != models.PhaseJudging || g.VoteDeadline == nil || g.ReminderSent {
			return errNoop
		}
		g.ReminderSent = true
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// Pass lets the attacker skip setting a trick, handing the set over without
// anyone taking a letter.
func (e *Engine) Pass(ctx context.Context, gameID, callerID uuid.UUID, idempotencyKey string) (*models.GameSession, error) {
	return e.store.UpdateGame(ctx, gameID, func(g *models.GameSession) error {
		if !g.IsParticipant(callerID) {
			return apperr.ErrNotParticipant
		}
		if _, dup := g.LookupProcessed(idempotencyKey); dup {
			return nil
		}
		if g.Terminal() {
			return apperr.ErrGameOver
		}
		if g.Status != models.GameActive {
			return apperr.New("GAME_NOT_STARTED", "waiting for an opponent to join")
		}
		if callerID != g.CurrentAttacker || g.TurnPhase != models.PhaseAttackerRecording {
			return apperr.ErrWrongPhase
		}
		g.CurrentAttacker = g.Opponent(callerID)
		g.CurrentTurn = g.CurrentAttacker
		g.MarkProcessed(idempotencyKey, uuid.Nil)
		return nil
	})
}

// Forfeit ends the game in the opponent's favor. Used by the explicit
// game:forfeit event and by the reconnection coordinator when a grace window
// expires; both paths share the idempotency ring, and a forfeit against an
// already-terminal session is a no-op rather than an error.
func (e *Engine) Forfeit(ctx context.Context, gameID, quitterID uuid.UUID, idempotencyKey string) (*models.GameSession, error) {
	session, err := e.store.UpdateGame(ctx, gameID, func(g *models.GameSession) error {
		if !g.IsParticipant(quitterID) {
			return apperr.ErrNotParticipant
		}
		if g.Terminal() {
			return errNoop
		}
		if _, dup := g.LookupProcessed(idempotencyKey); dup {
			return errNoop
		}
		winner := g.Opponent(quitterID)
		g.Status = models.GameAbandoned
		g.WinnerID = &winner
		g.TurnPhase = models.PhaseRoundComplete
		g.VoteDeadline = nil
		g.ReminderSent = false
		g.MarkProcessed(idempotencyKey, uuid.Nil)
		return nil
	})
	if errors.Is(err, errNoop) {
		return e.store.GetGame(ctx, gameID)
	}
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"game": gameID, "quitter": quitterID}).Info("game forfeited")
	return session, nil
}

// Get returns the current session state.
func (e *Engine) Get(ctx context.Context, gameID uuid.UUID) (*models.GameSession, error) {
	return e.store.GetGame(ctx, gameID)
}

// applyJudgment resolves the pending match attempt and advances the round.
// A bail gives the defender the next letter; the fifth letter ends the game
// in the attacker's favor. A landed attempt swaps the roles. The deadline is
// cleared either way.
func (e *Engine) applyJudgment(g *models.GameSession, move *models.Move, result models.MoveResult, timedOut bool) {
	move.Result = result
	move.TimedOut = timedOut
	g.VoteDeadline = nil
	g.ReminderSent = false

	attacker := g.CurrentAttacker
	defender := g.Opponent(attacker)

	if result == models.ResultBailed {
		letters := g.AddLetter(defender)
		if len(letters) == len(models.Letters) {
			g.Status = models.GameCompleted
			g.WinnerID = &attacker
			g.TurnPhase = models.PhaseRoundComplete
			return
		}
		// Attacker keeps the set; next round begins.
		g.TurnPhase = models.PhaseAttackerRecording
		g.CurrentTurn = attacker
		g.RoundNumber++
		return
	}

	// Matched: roles swap, round number unchanged.
	g.CurrentAttacker = defender
	g.CurrentTurn = defender
	g.TurnPhase = models.PhaseAttackerRecording
}
