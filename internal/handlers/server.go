// internal/handlers/server.go

// Package handlers is the composition root for the real-time transport: it
// validates inbound event shapes, gates them through the rate limiter, calls
// into the game and battle engines, and fans results out through the room
// registry.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dpayne5/skatevs/internal/apperr"
	"github.com/dpayne5/skatevs/internal/battle"
	"github.com/dpayne5/skatevs/internal/clips"
	"github.com/dpayne5/skatevs/internal/game"
	"github.com/dpayne5/skatevs/internal/health"
	"github.com/dpayne5/skatevs/internal/models"
	"github.com/dpayne5/skatevs/internal/notify"
	"github.com/dpayne5/skatevs/internal/ratelimit"
	"github.com/dpayne5/skatevs/internal/reconnect"
	"github.com/dpayne5/skatevs/internal/rooms"
	"github.com/dpayne5/skatevs/internal/store"
)

// reminderLead is how far ahead of the vote deadline the reminder
// notification goes out.
const reminderLead = 15 * time.Second

// Server wires the engines, registries and sweeps together. One instance per
// process; tests build their own with the in-memory store.
type Server struct {
	Log      *logrus.Logger
	Store    store.Store
	Games    *game.Engine
	Battles  *battle.Engine
	Rooms    *rooms.Registry
	Health   *health.Monitor
	Grace    *reconnect.Coordinator
	Limiter  *ratelimit.Limiter
	Notifier *notify.Notifier
	Clips    clips.Resolver

	// conns tracks live connections by id so the health sweep can close the
	// sockets it evicts.
	mu    sync.Mutex
	conns map[uuid.UUID]*wsConn

	now func() time.Time
}

// NewServer builds a Server over the given store. Notifier may be nil;
// heartbeat is the health sweep cadence, zero for the default.
func NewServer(st store.Store, res clips.Resolver, notifier *notify.Notifier, heartbeat time.Duration, log *logrus.Logger) *Server {
	s := &Server{
		Log:      log,
		Store:    st,
		Games:    game.NewEngine(st, log),
		Battles:  battle.NewEngine(st, log),
		Rooms:    rooms.NewRegistry(log),
		Health:   health.NewMonitor(log, heartbeat),
		Limiter:  ratelimit.NewLimiter(nil),
		Notifier: notifier,
		Clips:    res,
		conns:    make(map[uuid.UUID]*wsConn),
		now:      time.Now,
	}
	s.Grace = reconnect.NewCoordinator(s.graceForfeit, log)
	return s
}

// graceForfeit is the coordinator's forfeit path: apply the forfeit and
// broadcast the terminal state to the game room.
func (s *Server) graceForfeit(ctx context.Context, gameID, userID uuid.UUID, idempotencyKey string) error {
	session, err := s.Games.Forfeit(ctx, gameID, userID, idempotencyKey)
	if err != nil {
		return err
	}
	s.clearTerminal(session)
	s.broadcastGame(ctx, session, uuid.Nil)
	return nil
}

// SweepDeadlines resolves expired judging phases and sends one reminder per
// deadline as it approaches. Safe against votes racing the sweep: the engine
// re-checks phase and deadline inside the transaction.
func (s *Server) SweepDeadlines(ctx context.Context, now time.Time) {
	ids, err := s.Store.SweepGameDeadlines(ctx, now.Add(reminderLead))
	if err != nil {
		s.Log.WithError(err).Error("deadline sweep query failed")
		return
	}
	for _, id := range ids {
		session, err := s.Games.AutoResolveTimeout(ctx, id)
		if err != nil {
			s.Log.WithError(err).WithField("game", id).Error("auto-resolve failed")
			continue
		}
		if session != nil {
			s.clearTerminal(session)
			s.broadcastGame(ctx, session, uuid.Nil)
			continue
		}
		// Not expired yet, only approaching: remind the voters once.
		session, sent, err := s.Games.MarkReminder(ctx, id)
		if err != nil || !sent {
			continue
		}
		note := rooms.Event{Type: EvNotification, Payload: map[string]interface{}{
			"kind":   "vote_deadline_approaching",
			"gameId": session.ID.String(),
		}}
		s.Rooms.BroadcastToRoom(rooms.GameRoom(session.ID), note, uuid.Nil)
	}
}

// SweepHealth evicts unresponsive connections and closes their sockets, and
// pings every remaining connection so latency keeps getting sampled.
func (s *Server) SweepHealth(now time.Time) {
	for _, connID := range s.Health.Sweep(now) {
		s.mu.Lock()
		wc := s.conns[connID]
		s.mu.Unlock()
		if wc != nil {
			wc.close(UnresponsiveError, "no heartbeat")
		}
	}
	ping := rooms.Event{Type: EvPing, Payload: map[string]interface{}{
		"sentAt": now.UnixMilli(),
	}}
	s.mu.Lock()
	for _, wc := range s.conns {
		wc.conn.Send(ping)
	}
	s.mu.Unlock()
}

// SweepGrace forfeits games whose reconnection window lapsed.
func (s *Server) SweepGrace(ctx context.Context, now time.Time) {
	s.Grace.Sweep(ctx, now)
}

// HealthzHandler exposes the monitor's aggregate stats.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := s.Health.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"status":           "ok",
			"totalConnections": stats.TotalConnections,
			"avgLatencyMs":     stats.AvgLatency.Milliseconds(),
			"highLatencyCount": stats.HighLatencyCount,
			"staleConnections": stats.StaleConnections,
		}); err != nil {
			s.Log.WithError(err).Warn("failed to write healthz response")
		}
	}
}

// moveView is a Move with its clip key resolved to a playable URL.
type moveView struct {
	models.Move
	ClipURL string `json:"clipUrl,omitempty"`
}

// gameView is the broadcast shape of a GameSession. The idempotency ring is
// server-side bookkeeping and stays out of the payload.
type gameView struct {
	*models.GameSession
	Moves         []moveView            `json:"moves"`
	ProcessedKeys []models.ProcessedKey `json:"processedIdempotencyKeys,omitempty"`
}

// battleView is the broadcast shape of a BattleSession. In-progress votes and
// the idempotency ring stay server-side; only the fact that a seat has voted
// goes out, so neither side can see the other's call before the round settles.
type battleView struct {
	*models.BattleSession
	CreatorVote   *models.BattleVote    `json:"creatorVote,omitempty"`
	OpponentVote  *models.BattleVote    `json:"opponentVote,omitempty"`
	ProcessedKeys []models.ProcessedKey `json:"processedIdempotencyKeys,omitempty"`

	CreatorVoted  bool `json:"creatorVoted"`
	OpponentVoted bool `json:"opponentVoted"`
}

func battlePayload(b *models.BattleSession) battleView {
	return battleView{
		BattleSession: b,
		CreatorVoted:  b.CreatorVote != nil,
		OpponentVoted: b.OpponentVote != nil,
	}
}

// gamePayload resolves clip URLs for broadcast. Resolution failures degrade
// to the bare key; the engine state is already committed.
func (s *Server) gamePayload(ctx context.Context, g *models.GameSession) gameView {
	view := gameView{GameSession: g, Moves: make([]moveView, 0, len(g.Moves))}
	for _, m := range g.Moves {
		mv := moveView{Move: m}
		if s.Clips != nil && m.ClipKey != "" {
			url, err := s.Clips.ResolveURL(ctx, m.ClipKey)
			if err != nil {
				s.Log.WithError(err).WithField("clip", m.ClipKey).Warn("clip resolution failed")
			} else {
				mv.ClipURL = url
			}
		}
		view.Moves = append(view.Moves, mv)
	}
	return view
}

// broadcastGame fans the new session state out to the game room.
func (s *Server) broadcastGame(ctx context.Context, g *models.GameSession, exclude uuid.UUID) {
	s.Rooms.BroadcastToRoom(rooms.GameRoom(g.ID), rooms.Event{
		Type:    EvGameUpdate,
		Payload: s.gamePayload(ctx, g),
	}, exclude)
}

// broadcastBattle fans the new battle state out to the battle room.
func (s *Server) broadcastBattle(b *models.BattleSession, eventType string, exclude uuid.UUID) {
	s.Rooms.BroadcastToRoom(rooms.BattleRoom(b.ID), rooms.Event{
		Type:    eventType,
		Payload: battlePayload(b),
	}, exclude)
}

// clearTerminal drops grace markers once a session reaches a terminal state.
func (s *Server) clearTerminal(g *models.GameSession) {
	if !g.Terminal() {
		return
	}
	s.Grace.Clear(g.Player1ID)
	if g.Player2ID != uuid.Nil {
		s.Grace.Clear(g.Player2ID)
	}
}

// trackParticipants records active-game markers for both seated players.
// Called when a game activates; per-event refreshes go through refreshGrace.
func (s *Server) trackParticipants(g *models.GameSession) {
	if g.Status != models.GameActive {
		return
	}
	s.Grace.TrackActive(g.Player1ID, g.ID)
	if g.Player2ID != uuid.Nil {
		s.Grace.TrackActive(g.Player2ID, g.ID)
	}
}

// refreshGrace renews the acting participant's marker. Any successful game
// event counts as presence, so a player who only votes or passes never runs
// down their own grace window. Only the caller's marker moves: the other
// seat's countdown, if one is running, stays put.
func (s *Server) refreshGrace(userID uuid.UUID, g *models.GameSession) {
	if g.Status != models.GameActive || !g.IsParticipant(userID) {
		return
	}
	s.Grace.TrackActive(userID, g.ID)
}

// sendError reports a rejected operation to one connection as a uniform
// error {code, message} payload.
func (s *Server) sendError(conn *rooms.Connection, op string, err error) {
	var coded *apperr.Error
	switch {
	case errors.As(err, &coded):
	case errors.Is(err, store.ErrNotFound):
		coded = apperr.New("NOT_FOUND", "session not found")
	case errors.Is(err, store.ErrConflict):
		coded = apperr.New(op+"_failed", "operation failed under contention, try again")
	default:
		s.Log.WithError(err).WithField("op", op).Error("internal error")
		coded = apperr.New("internal_error", "something went wrong")
	}
	conn.Send(rooms.Event{Type: EvError, Payload: map[string]string{
		"code":    coded.Code,
		"message": coded.Message,
	}})
}

// sendValidationError reports a malformed payload.
func (s *Server) sendValidationError(conn *rooms.Connection, err error) {
	conn.Send(rooms.Event{Type: EvError, Payload: map[string]string{
		"code":    "INVALID_PAYLOAD",
		"message": err.Error(),
	}})
}
