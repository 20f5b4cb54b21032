// internal/models/game_session.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Letters is the fixed letter progression for a game. A defender who collects
// all five letters loses the game.
const Letters = "SKATE"

// MaxProcessedKeys bounds the per-session idempotency ring buffer.
const MaxProcessedKeys = 50

// TurnPhase tracks where the current round is in the set/match/judge cycle.
type TurnPhase string

const (
	PhaseAttackerRecording TurnPhase = "attacker_recording"
	PhaseDefenderRecording TurnPhase = "defender_recording"
	PhaseJudging           TurnPhase = "judging"
	PhaseRoundComplete     TurnPhase = "round_complete"
)

// GameStatus is the session lifecycle state. Completed and abandoned are terminal.
type GameStatus string

const (
	GameWaiting   GameStatus = "waiting"
	GameActive    GameStatus = "active"
	GameCompleted GameStatus = "completed"
	GameAbandoned GameStatus = "abandoned"
)

// MoveType distinguishes the attacker's set clip from the defender's match attempt.
type MoveType string

const (
	MoveSet   MoveType = "set"
	MoveMatch MoveType = "match"
)

// MoveResult is the judged outcome of a move. At most one move per session is
// pending at any time.
type MoveResult string

const (
	ResultLanded  MoveResult = "landed"
	ResultBailed  MoveResult = "bailed"
	ResultPending MoveResult = "pending"
)

// Vote is a participant's judgment of a match attempt.
type Vote string

const (
	VoteLanded Vote = "landed"
	VoteBailed Vote = "bailed"
)

// JudgmentVotes holds both participants' votes on a match attempt. Either side
// may arrive first; nil means not yet cast.
type JudgmentVotes struct {
	AttackerVote *Vote `json:"attackerVote"`
	DefenderVote *Vote `json:"defenderVote"`
}

// Move is a single clip submission within a game: the attacker's set trick or
// the defender's match attempt.
type Move struct {
	ID             uuid.UUID     `json:"id"`
	Type           MoveType      `json:"type"`
	Result         MoveResult    `json:"result"`
	Votes          JudgmentVotes `json:"judgmentVotes"`
	IdempotencyKey string        `json:"idempotencyKey"`
	PlayerID       uuid.UUID     `json:"playerId"`
	TrickName      string        `json:"trickName,omitempty"`

	// ClipKey is an opaque storage reference. The engine never touches media;
	// the transport layer resolves it to a playable URL when broadcasting.
	ClipKey string `json:"clipKey"`

	// TimedOut marks a move that was force-resolved by the deadline sweep
	// rather than by votes.
	TimedOut bool `json:"timedOut,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ProcessedKey records one already-applied idempotency key together with the
// identifiers the original request produced, so retries can be answered
// without re-applying the mutation.
type ProcessedKey struct {
	Key    string    `json:"key"`
	MoveID uuid.UUID `json:"moveId,omitempty"`
}

// GameSession is the durable, authoritative record of one game. It is only
// ever mutated inside the store's transactional update.
type GameSession struct {
	ID     uuid.UUID `json:"id"`
	SpotID string    `json:"spotId,omitempty"`

	Player1ID uuid.UUID `json:"player1Id"`
	Player2ID uuid.UUID `json:"player2Id"` // uuid.Nil until an opponent joins

	CurrentAttacker uuid.UUID `json:"currentAttacker"`
	CurrentTurn     uuid.UUID `json:"currentTurn"`

	TurnPhase   TurnPhase `json:"turnPhase"`
	RoundNumber int       `json:"roundNumber"`

	// Letter strings are always a prefix of Letters, length 0..5.
	Player1Letters string `json:"player1Letters"`
	Player2Letters string `json:"player2Letters"`

	Moves []Move `json:"moves"`

	ProcessedKeys []ProcessedKey `json:"processedIdempotencyKeys"`

	Status GameStatus `json:"status"`

	// VoteDeadline is a persisted instant, never a live timer. Both the vote
	// path and the sweep re-check it at resolution time.
	VoteDeadline *time.Time `json:"voteDeadline"`

	// ReminderSent flags that a deadline reminder notification went out for
	// the current judging phase.
	ReminderSent bool `json:"reminderSent"`

	WinnerID *uuid.UUID `json:"winnerId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsParticipant reports whether userID is one of the two players.
func (g *GameSession) IsParticipant(userID uuid.UUID) bool {
	return userID == g.Player1ID || userID == g.Player2ID
}

// Opponent returns the other participant, or uuid.Nil if userID is not in the game.
func (g *GameSession) Opponent(userID uuid.UUID) uuid.UUID {
	switch userID {
	case g.Player1ID:
		return g.Player2ID
	case g.Player2ID:
		return g.Player1ID
	}
	return uuid.Nil
}

// LettersFor returns the letter string for the given participant.
func (g *GameSession) LettersFor(userID uuid.UUID) string {
	if userID == g.Player1ID {
		return g.Player1Letters
	}
	return g.Player2Letters
}

// AddLetter appends the next letter of the progression to the given
// participant and returns the updated string.
func (g *GameSession) AddLetter(userID uuid.UUID) string {
	if userID == g.Player1ID {
		if len(g.Player1Letters) < len(Letters) {
			g.Player1Letters = Letters[:len(g.Player1Letters)+1]
		}
		return g.Player1Letters
	}
	if len(g.Player2Letters) < len(Letters) {
		g.Player2Letters = Letters[:len(g.Player2Letters)+1]
	}
	return g.Player2Letters
}

// Terminal reports whether the session is in a terminal status.
func (g *GameSession) Terminal() bool {
	return g.Status == GameCompleted || g.Status == GameAbandoned
}

// PendingMove returns the single in-flight move awaiting judgment, if any.
func (g *GameSession) PendingMove() *Move {
	for i := len(g.Moves) - 1; i >= 0; i-- {
		if g.Moves[i].Result == ResultPending {
			return &g.Moves[i]
		}
	}
	return nil
}

// MoveByID looks up a move by its identifier.
func (g *GameSession) MoveByID(id uuid.UUID) *Move {
	for i := range g.Moves {
		if g.Moves[i].ID == id {
			return &g.Moves[i]
		}
	}
	return nil
}

// LookupProcessed returns the recorded result for an idempotency key, if the
// key is still inside the ring buffer.
func (g *GameSession) LookupProcessed(key string) (ProcessedKey, bool) {
	for _, pk := range g.ProcessedKeys {
		if pk.Key == key {
			return pk, true
		}
	}
	return ProcessedKey{}, false
}

// MarkProcessed records an applied idempotency key, evicting the oldest entry
// once the buffer is full.
func (g *GameSession) MarkProcessed(key string, moveID uuid.UUID) {
	g.ProcessedKeys = append(g.ProcessedKeys, ProcessedKey{Key: key, MoveID: moveID})
	if len(g.ProcessedKeys) > MaxProcessedKeys {
		g.ProcessedKeys = g.ProcessedKeys[len(g.ProcessedKeys)-MaxProcessedKeys:]
	}
}
