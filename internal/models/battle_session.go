// internal/models/battle_session.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Matchmaking controls how an opponent is found for a battle.
type Matchmaking string

const (
	MatchmakingOpen   Matchmaking = "open"   // anyone may join
	MatchmakingDirect Matchmaking = "direct" // a specific user is challenged
)

// BattleState is the battle lifecycle state.
type BattleState string

const (
	BattleWaiting   BattleState = "waiting"
	BattleActive    BattleState = "active"
	BattleCompleted BattleState = "completed"
)

// BattleVote is a participant's call on the opponent's round clip.
type BattleVote string

const (
	BattleVoteClean  BattleVote = "clean"
	BattleVoteSketch BattleVote = "sketch"
	BattleVoteRedo   BattleVote = "redo"
)

// BattleScore is the running score, one counter per seat.
type BattleScore struct {
	Creator  int `json:"creator"`
	Opponent int `json:"opponent"`
}

// BattleSession is the durable record of one freeform dual-voting battle.
// Each round both participants vote on the other's clip; clean scores 2,
// sketch 1, redo 0. Ties at the end go to the creator.
type BattleSession struct {
	ID uuid.UUID `json:"id"`

	CreatorID  uuid.UUID  `json:"creatorId"`
	OpponentID *uuid.UUID `json:"opponentId"`

	Matchmaking Matchmaking `json:"matchmaking"`

	// Rounds is the configured battle length; CurrentRound is 1-based.
	Rounds       int `json:"rounds"`
	CurrentRound int `json:"currentRound"`

	Score BattleScore `json:"score"`

	State      BattleState `json:"state"`
	VotingOpen bool        `json:"votingOpen"`

	CreatorReady  bool `json:"creatorReady"`
	OpponentReady bool `json:"opponentReady"`

	// Votes for the round in progress. Cleared when the round settles.
	CreatorVote  *BattleVote `json:"creatorVote"`
	OpponentVote *BattleVote `json:"opponentVote"`

	ProcessedKeys []ProcessedKey `json:"processedIdempotencyKeys"`

	WinnerID *uuid.UUID `json:"winnerId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsParticipant reports whether userID occupies one of the battle's two seats.
func (b *BattleSession) IsParticipant(userID uuid.UUID) bool {
	if userID == b.CreatorID {
		return true
	}
	return b.OpponentID != nil && *b.OpponentID == userID
}

// LookupProcessed returns the recorded result for an idempotency key.
func (b *BattleSession) LookupProcessed(key string) (ProcessedKey, bool) {
	for _, pk := range b.ProcessedKeys {
		if pk.Key == key {
			return pk, true
		}
	}
	return ProcessedKey{}, false
}

// MarkProcessed records an applied idempotency key, evicting the oldest entry
// once the buffer is full.
func (b *BattleSession) MarkProcessed(key string) {
	b.ProcessedKeys = append(b.ProcessedKeys, ProcessedKey{Key: key})
	if len(b.ProcessedKeys) > MaxProcessedKeys {
		b.ProcessedKeys = b.ProcessedKeys[len(b.ProcessedKeys)-MaxProcessedKeys:]
	}
}
