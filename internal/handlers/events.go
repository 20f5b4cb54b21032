// internal/handlers/events.go
package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dpayne5/skatevs/internal/models"
	"github.com/dpayne5/skatevs/internal/ratelimit"
)

// ClientMessage is the inbound wire envelope. Every event is a tagged,
// exhaustively validated shape; malformed payloads are rejected before any
// engine sees them. Caller identity always comes from the connection's
// session token, never from a payload field.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound event types.
const (
	EvGameCreate    = "game:create"
	EvGameJoin      = "game:join"
	EvGameTrick     = "game:trick"
	EvGameVote      = "game:vote"
	EvGamePass      = "game:pass"
	EvGameForfeit   = "game:forfeit"
	EvGameReconnect = "game:reconnect"

	EvBattleCreate      = "battle:create"
	EvBattleJoin        = "battle:join"
	EvBattleStartVoting = "battle:startVoting"
	EvBattleVote        = "battle:vote"
	EvBattleReady       = "battle:ready"

	EvRoomJoin  = "room:join"
	EvRoomLeave = "room:leave"

	EvPing = "ping"
	EvPong = "pong"
)

// Outbound event types.
const (
	EvGameCreated = "game:created"
	EvGameUpdate  = "game:update"

	EvBattleCreated       = "battle:created"
	EvBattleJoined        = "battle:joined"
	EvBattleUpdate        = "battle:update"
	EvBattleVotingStarted = "battle:votingStarted"
	EvBattleVoted         = "battle:voted"
	EvBattleCompleted     = "battle:completed"

	EvNotification = "notification"
	EvError        = "error"
)

// eventClass maps an inbound event type to its rate-limit class. Unknown
// types are rejected before admission control.
func eventClass(eventType string) (string, bool) {
	switch eventType {
	case EvGameTrick:
		return ratelimit.ClassTrickSubmit, true
	case EvGameVote, EvBattleVote:
		return ratelimit.ClassVote, true
	case EvRoomJoin, EvRoomLeave:
		return ratelimit.ClassRoom, true
	case EvGameCreate, EvGameJoin, EvGamePass, EvGameForfeit, EvGameReconnect,
		EvBattleCreate, EvBattleJoin, EvBattleStartVoting, EvBattleReady:
		return ratelimit.ClassSession, true
	case EvPing, EvPong:
		return ratelimit.ClassPing, true
	}
	return "", false
}

type gameCreateReq struct {
	SpotID     string `json:"spotId"`
	MaxPlayers int    `json:"maxPlayers"`
}

func (r *gameCreateReq) Validate() error {
	if r.MaxPlayers != 0 && r.MaxPlayers != 2 {
		return fmt.Errorf("maxPlayers must be 2")
	}
	return nil
}

type gameRef struct {
	GameID uuid.UUID `json:"gameId"`
}

func (r *gameRef) Validate() error {
	if r.GameID == uuid.Nil {
		return fmt.Errorf("gameId is required")
	}
	return nil
}

type gameTrickReq struct {
	GameID         uuid.UUID `json:"gameId"`
	TrickName      string    `json:"trickName"`
	ClipKey        string    `json:"clipRef"`
	SetTrick       bool      `json:"setTrick"`
	IdempotencyKey string    `json:"idempotencyKey"`
}

func (r *gameTrickReq) Validate() error {
	if r.GameID == uuid.Nil {
		return fmt.Errorf("gameId is required")
	}
	if r.ClipKey == "" {
		return fmt.Errorf("clipRef is required")
	}
	if r.SetTrick && r.TrickName == "" {
		return fmt.Errorf("trickName is required for a set trick")
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotencyKey is required")
	}
	return nil
}

type gameVoteReq struct {
	GameID         uuid.UUID   `json:"gameId"`
	MoveID         uuid.UUID   `json:"moveId"`
	Vote           models.Vote `json:"vote"`
	IdempotencyKey string      `json:"idempotencyKey"`
}

func (r *gameVoteReq) Validate() error {
	if r.GameID == uuid.Nil || r.MoveID == uuid.Nil {
		return fmt.Errorf("gameId and moveId are required")
	}
	if r.Vote != models.VoteLanded && r.Vote != models.VoteBailed {
		return fmt.Errorf("vote must be landed or bailed")
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotencyKey is required")
	}
	return nil
}

type gameActionReq struct {
	GameID         uuid.UUID `json:"gameId"`
	IdempotencyKey string    `json:"idempotencyKey"`
}

func (r *gameActionReq) Validate() error {
	if r.GameID == uuid.Nil {
		return fmt.Errorf("gameId is required")
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotencyKey is required")
	}
	return nil
}

type battleCreateReq struct {
	Matchmaking models.Matchmaking `json:"matchmaking"`
	OpponentID  *uuid.UUID         `json:"opponentId"`
	Rounds      int                `json:"rounds"`
}

func (r *battleCreateReq) Validate() error {
	switch r.Matchmaking {
	case models.MatchmakingOpen, models.MatchmakingDirect:
	default:
		return fmt.Errorf("matchmaking must be open or direct")
	}
	if r.Rounds < 0 || r.Rounds > 20 {
		return fmt.Errorf("rounds out of range")
	}
	return nil
}

type battleRef struct {
	BattleID uuid.UUID `json:"battleId"`
}

func (r *battleRef) Validate() error {
	if r.BattleID == uuid.Nil {
		return fmt.Errorf("battleId is required")
	}
	return nil
}

type battleVoteReq struct {
	BattleID       uuid.UUID         `json:"battleId"`
	Vote           models.BattleVote `json:"vote"`
	IdempotencyKey string            `json:"idempotencyKey"`
}

func (r *battleVoteReq) Validate() error {
	if r.BattleID == uuid.Nil {
		return fmt.Errorf("battleId is required")
	}
	switch r.Vote {
	case models.BattleVoteClean, models.BattleVoteSketch, models.BattleVoteRedo:
	default:
		return fmt.Errorf("vote must be clean, sketch or redo")
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotencyKey is required")
	}
	return nil
}

type roomReq struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r *roomReq) Validate() error {
	if r.Type != "game" && r.Type != "battle" {
		return fmt.Errorf("room type must be game or battle")
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("room id must be a session id")
	}
	return nil
}

type pongReq struct {
	// SentAt echoes the server timestamp (unix milliseconds) from the ping.
	SentAt int64 `json:"sentAt"`
}

func (r *pongReq) Validate() error {
	if r.SentAt <= 0 {
		return fmt.Errorf("sentAt is required")
	}
	return nil
}

// decode unmarshals and validates a payload shape in one step.
func decode[T interface{ Validate() error }](raw json.RawMessage, into T) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return into.Validate()
}
