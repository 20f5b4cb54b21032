// internal/apperr/apperr.go

// Package apperr defines the coded errors the engines return and the
// transport layer reports to clients as error {code, message} payloads.
package apperr

import "fmt"

// Error carries a stable wire code alongside a human-readable message.
// Engines return these for user-correctable rejections; every one of them
// implies zero state mutation.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a coded error with a formatted message.
func New(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation rejections.
var (
	ErrNotParticipant = &Error{Code: "NOT_PARTICIPANT", Message: "you are not a participant in this game"}
	ErrNotYourTurn    = &Error{Code: "NOT_YOUR_TURN", Message: "it is not your turn"}
	ErrWrongPhase     = &Error{Code: "WRONG_PHASE", Message: "action not valid in the current phase"}
	ErrAlreadyVoted   = &Error{Code: "ALREADY_VOTED", Message: "you already voted on this attempt"}
	ErrGameOver       = &Error{Code: "GAME_OVER", Message: "game has already ended"}
	ErrBattleFull     = &Error{Code: "BATTLE_FULL", Message: "battle already has two participants"}
	ErrNotInvited     = &Error{Code: "NOT_INVITED", Message: "this battle is a direct challenge for another user"}
	ErrNotReady       = &Error{Code: "NOT_READY", Message: "both participants must be ready"}
	ErrMoveNotFound   = &Error{Code: "MOVE_NOT_FOUND", Message: "move not found"}
	ErrInvalidVote    = &Error{Code: "INVALID_VOTE", Message: "unrecognized vote value"}
)

// RateLimited is the structured rejection the admission gate returns. No
// handler runs and nothing is mutated.
var RateLimited = &Error{Code: "rate_limited", Message: "too many requests, slow down"}
