// internal/handlers/battle_events.go
package handlers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/dpayne5/skatevs/internal/rooms"
)

func (s *Server) handleBattleCreate(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req battleCreateReq
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	session, err := s.Battles.Create(ctx, conn.UserID, req.Matchmaking, req.OpponentID, req.Rounds)
	if err != nil {
		s.sendError(conn, "battle_create", err)
		return
	}
	s.Rooms.JoinRoom(rooms.BattleRoom(session.ID), conn)
	conn.Send(rooms.Event{Type: EvBattleCreated, Payload: battlePayload(session)})

	// A direct challenge notifies the target; delivery failure never blocks
	// the battle flow.
	if session.OpponentID != nil {
		s.notifyUser(ctx, *session.OpponentID, "battle_challenge",
			"You've been challenged", "A skater challenged you to a battle",
			map[string]interface{}{"battleId": session.ID.String()})
	}
}

func (s *Server) handleBattleJoin(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req battleRef
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	session, err := s.Battles.Join(ctx, req.BattleID, conn.UserID)
	if err != nil {
		s.sendError(conn, "battle_join", err)
		return
	}
	s.Rooms.JoinRoom(rooms.BattleRoom(session.ID), conn)
	s.broadcastBattle(session, EvBattleJoined, uuid.Nil)
}

func (s *Server) handleBattleReady(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req battleRef
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	session, err := s.Battles.Ready(ctx, req.BattleID, conn.UserID)
	if err != nil {
		s.sendError(conn, "battle_ready", err)
		return
	}
	s.broadcastBattle(session, EvBattleUpdate, uuid.Nil)
}

func (s *Server) handleBattleStartVoting(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req battleRef
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	session, err := s.Battles.StartVoting(ctx, req.BattleID, conn.UserID)
	if err != nil {
		s.sendError(conn, "battle_start_voting", err)
		return
	}
	s.broadcastBattle(session, EvBattleVotingStarted, uuid.Nil)
}

func (s *Server) handleBattleVote(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req battleVoteReq
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	res, err := s.Battles.CastVote(ctx, req.BattleID, conn.UserID, req.Vote, req.IdempotencyKey)
	if err != nil {
		s.sendError(conn, "battle_vote", err)
		return
	}
	if res.Duplicate {
		conn.Send(rooms.Event{Type: EvBattleVoted, Payload: map[string]interface{}{
			"duplicate": true,
			"session":   battlePayload(res.Session),
		}})
		return
	}
	switch {
	case res.Completed:
		s.broadcastBattle(res.Session, EvBattleCompleted, uuid.Nil)
	case res.RoundSettled:
		s.broadcastBattle(res.Session, EvBattleUpdate, uuid.Nil)
	default:
		// A lone vote is acknowledged without revealing its value to the
		// other side.
		s.broadcastBattle(res.Session, EvBattleVoted, uuid.Nil)
	}
}
