// internal/handlers/game_events.go
package handlers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/dpayne5/skatevs/internal/apperr"
	"github.com/dpayne5/skatevs/internal/game"
	"github.com/dpayne5/skatevs/internal/models"
	"github.com/dpayne5/skatevs/internal/notify"
	"github.com/dpayne5/skatevs/internal/rooms"
)

func (s *Server) handleGameCreate(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req gameCreateReq
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	session, err := s.Games.Create(ctx, conn.UserID, req.SpotID, req.MaxPlayers)
	if err != nil {
		s.sendError(conn, "game_create", err)
		return
	}
	s.Rooms.JoinRoom(rooms.GameRoom(session.ID), conn)
	conn.Send(rooms.Event{Type: EvGameCreated, Payload: s.gamePayload(ctx, session)})
}

func (s *Server) handleGameJoin(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req gameRef
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	session, err := s.Games.Join(ctx, req.GameID, conn.UserID)
	if err != nil {
		s.sendError(conn, "game_join", err)
		return
	}
	s.Rooms.JoinRoom(rooms.GameRoom(session.ID), conn)
	s.trackParticipants(session)
	s.broadcastGame(ctx, session, uuid.Nil)
}

func (s *Server) handleGameTrick(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req gameTrickReq
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	res, err := s.Games.SubmitTrick(ctx, req.GameID, conn.UserID, game.TrickSubmission{
		ClipKey:        req.ClipKey,
		TrickName:      req.TrickName,
		SetTrick:       req.SetTrick,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.sendError(conn, "game_trick", err)
		return
	}
	if res.Duplicate {
		// Replay: answer the retrier without re-broadcasting.
		conn.Send(rooms.Event{Type: EvGameUpdate, Payload: map[string]interface{}{
			"duplicate": true,
			"moveId":    res.MoveID.String(),
			"session":   s.gamePayload(ctx, res.Session),
		}})
		return
	}
	s.refreshGrace(conn.UserID, res.Session)
	s.broadcastGame(ctx, res.Session, uuid.Nil)
}

func (s *Server) handleGameVote(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req gameVoteReq
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	res, err := s.Games.SubmitVote(ctx, req.GameID, req.MoveID, conn.UserID, req.Vote, req.IdempotencyKey)
	if err != nil {
		s.sendError(conn, "game_vote", err)
		return
	}
	if res.Duplicate {
		conn.Send(rooms.Event{Type: EvGameUpdate, Payload: map[string]interface{}{
			"duplicate": true,
			"moveId":    res.MoveID.String(),
			"session":   s.gamePayload(ctx, res.Session),
		}})
		return
	}
	s.refreshGrace(conn.UserID, res.Session)
	s.clearTerminal(res.Session)
	s.broadcastGame(ctx, res.Session, uuid.Nil)
}

func (s *Server) handleGamePass(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req gameActionReq
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	session, err := s.Games.Pass(ctx, req.GameID, conn.UserID, req.IdempotencyKey)
	if err != nil {
		s.sendError(conn, "game_pass", err)
		return
	}
	s.refreshGrace(conn.UserID, session)
	s.broadcastGame(ctx, session, uuid.Nil)
}

func (s *Server) handleGameForfeit(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req gameActionReq
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	session, err := s.Games.Forfeit(ctx, req.GameID, conn.UserID, req.IdempotencyKey)
	if err != nil {
		s.sendError(conn, "game_forfeit", err)
		return
	}
	s.clearTerminal(session)
	s.broadcastGame(ctx, session, uuid.Nil)
}

// handleGameReconnect reattaches a returning participant: cancels any grace
// countdown, rejoins the room, and replays current state to the caller. Room
// membership is rebuilt from the durable participant list, never the other
// way around.
func (s *Server) handleGameReconnect(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req gameRef
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	session, err := s.Games.Get(ctx, req.GameID)
	if err != nil {
		s.sendError(conn, "game_reconnect", err)
		return
	}
	if !session.IsParticipant(conn.UserID) {
		s.sendError(conn, "game_reconnect", apperr.ErrNotParticipant)
		return
	}
	s.Grace.HandleReconnect(conn.UserID)
	if session.Status == models.GameActive {
		s.Grace.TrackActive(conn.UserID, session.ID)
	}
	s.Rooms.JoinRoom(rooms.GameRoom(session.ID), conn)
	conn.Send(rooms.Event{Type: EvGameUpdate, Payload: s.gamePayload(ctx, session)})
}

func (s *Server) handleRoomJoin(ctx context.Context, conn *rooms.Connection, raw json.RawMessage) {
	var req roomReq
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	id := uuid.MustParse(req.ID)
	// Only session participants may join a session room.
	switch req.Type {
	case "game":
		session, err := s.Games.Get(ctx, id)
		if err != nil {
			s.sendError(conn, "room_join", err)
			return
		}
		if !session.IsParticipant(conn.UserID) {
			s.sendError(conn, "room_join", apperr.ErrNotParticipant)
			return
		}
	case "battle":
		session, err := s.Battles.Get(ctx, id)
		if err != nil {
			s.sendError(conn, "room_join", err)
			return
		}
		if !session.IsParticipant(conn.UserID) && session.Matchmaking != models.MatchmakingOpen {
			s.sendError(conn, "room_join", apperr.ErrNotParticipant)
			return
		}
	}
	s.Rooms.JoinRoom(rooms.Key{Type: req.Type, ID: req.ID}, conn)
}

func (s *Server) handleRoomLeave(conn *rooms.Connection, raw json.RawMessage) {
	var req roomReq
	if err := decode(raw, &req); err != nil {
		s.sendValidationError(conn, err)
		return
	}
	s.Rooms.LeaveRoom(rooms.Key{Type: req.Type, ID: req.ID}, conn)
}

// notifyUser delivers an out-of-room notice over any live connection and
// mirrors it to the push queue for offline delivery.
func (s *Server) notifyUser(ctx context.Context, userID uuid.UUID, kind, title, body string, data map[string]interface{}) {
	payload := map[string]interface{}{"kind": kind, "title": title, "body": body}
	for k, v := range data {
		payload[k] = v
	}
	s.Rooms.SendToUser(userID, rooms.Event{Type: EvNotification, Payload: payload})
	if s.Notifier != nil {
		s.Notifier.Push(ctx, notify.Notification{
			UserID: userID,
			Kind:   kind,
			Title:  title,
			Body:   body,
			Data:   data,
		})
	}
}
