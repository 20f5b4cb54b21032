// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dpayne5/skatevs/internal/apperr"
	"github.com/dpayne5/skatevs/internal/auth"
	"github.com/dpayne5/skatevs/internal/middleware"
	"github.com/dpayne5/skatevs/internal/rooms"
)

const writeTimeout = 3 * time.Second

// wsConn pairs the registry-facing connection with its underlying socket so
// the health sweep can forcibly close evicted peers.
type wsConn struct {
	conn   *rooms.Connection
	ws     *websocket.Conn
	cancel context.CancelFunc
	once   sync.Once
}

// close shuts the socket down exactly once and cancels the read loop.
func (wc *wsConn) close(code websocket.StatusCode, reason string) {
	wc.once.Do(func() {
		wc.ws.Close(code, reason)
		if wc.cancel != nil {
			wc.cancel()
		}
	})
}

// WSHandler upgrades the connection, authenticates the caller, registers the
// connection with the health monitor and room registry, and runs the read
// loop until the peer goes away.
func WSHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Identity is attached before any event handler runs.
		userID, err := auth.UserFromRequest(r)
		if err != nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"skatevs"},
			OriginPatterns: []string{"*"}, // tighten for production
		})
		if err != nil {
			s.Log.WithError(err).Warn("websocket accept failed")
			return
		}
		if c.Subprotocol() != "skatevs" {
			c.Close(BadSubprotocolError, "client must use the skatevs subprotocol")
			return
		}
		middleware.LogWebSocketConnect(s.Log, r.RemoteAddr, userID.String())

		ctx, cancel := context.WithCancel(r.Context())
		conn := rooms.NewConnection(userID, s.Log)
		wc := &wsConn{conn: conn, ws: c, cancel: cancel}

		s.mu.Lock()
		s.conns[conn.ID] = wc
		s.mu.Unlock()
		s.Rooms.Register(conn)
		s.Health.Track(conn.ID, userID)

		go writePump(ctx, wc, s.Log)

		readErr := s.readLoop(ctx, wc)

		// Teardown: drop ephemeral state, start the reconnection grace
		// countdown for any active game.
		s.mu.Lock()
		delete(s.conns, conn.ID)
		s.mu.Unlock()
		s.Rooms.RemoveConnection(conn)
		s.Health.Forget(conn.ID)
		s.Limiter.RemoveConnection(conn.ID)
		s.Grace.HandleDisconnect(userID)
		cancel()
		wc.close(websocket.StatusNormalClosure, "bye")
		middleware.LogWebSocketDisconnect(s.Log, r.RemoteAddr, userID.String(), readErr)
	}
}

// writePump drains the connection's outbound queue onto the socket.
func writePump(ctx context.Context, wc *wsConn, log *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-wc.conn.Out:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wc.ws.Write(writeCtx, websocket.MessageText, raw)
			cancel()
			if err != nil {
				log.WithError(err).WithField("conn", wc.conn.ID).Debug("outbound write failed")
				return
			}
		}
	}
}

// readLoop reads, validates, rate-limits and dispatches inbound events until
// the connection drops.
func (s *Server) readLoop(ctx context.Context, wc *wsConn) error {
	conn := wc.conn
	for {
		msgType, data, err := wc.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		// Any inbound traffic counts as liveness.
		s.Health.Touch(conn.ID)

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendValidationError(conn, err)
			continue
		}

		class, known := eventClass(msg.Type)
		if !known {
			conn.Send(rooms.Event{Type: EvError, Payload: map[string]string{
				"code":    "UNKNOWN_EVENT",
				"message": "unknown event type: " + msg.Type,
			}})
			continue
		}
		// Admission control happens before any handler or engine runs.
		if !s.Limiter.Allow(conn.ID, class) {
			conn.Send(rooms.Event{Type: EvError, Payload: map[string]string{
				"code":    apperr.RateLimited.Code,
				"message": apperr.RateLimited.Message,
			}})
			continue
		}

		s.dispatch(ctx, conn, msg)
	}
}

// dispatch routes one validated envelope to its handler.
func (s *Server) dispatch(ctx context.Context, conn *rooms.Connection, msg ClientMessage) {
	switch msg.Type {
	case EvGameCreate:
		s.handleGameCreate(ctx, conn, msg.Payload)
	case EvGameJoin:
		s.handleGameJoin(ctx, conn, msg.Payload)
	case EvGameTrick:
		s.handleGameTrick(ctx, conn, msg.Payload)
	case EvGameVote:
		s.handleGameVote(ctx, conn, msg.Payload)
	case EvGamePass:
		s.handleGamePass(ctx, conn, msg.Payload)
	case EvGameForfeit:
		s.handleGameForfeit(ctx, conn, msg.Payload)
	case EvGameReconnect:
		s.handleGameReconnect(ctx, conn, msg.Payload)
	case EvBattleCreate:
		s.handleBattleCreate(ctx, conn, msg.Payload)
	case EvBattleJoin:
		s.handleBattleJoin(ctx, conn, msg.Payload)
	case EvBattleStartVoting:
		s.handleBattleStartVoting(ctx, conn, msg.Payload)
	case EvBattleVote:
		s.handleBattleVote(ctx, conn, msg.Payload)
	case EvBattleReady:
		s.handleBattleReady(ctx, conn, msg.Payload)
	case EvRoomJoin:
		s.handleRoomJoin(ctx, conn, msg.Payload)
	case EvRoomLeave:
		s.handleRoomLeave(conn, msg.Payload)
	case EvPing:
		conn.Send(rooms.Event{Type: EvPong, Payload: map[string]interface{}{
			"serverTime": s.now().UnixMilli(),
		}})
	case EvPong:
		s.handlePong(conn, msg.Payload)
	}
}

// handlePong records a latency sample from the echoed server timestamp.
func (s *Server) handlePong(conn *rooms.Connection, raw json.RawMessage) {
	var req pongReq
	if err := decode(raw, &req); err != nil {
		return
	}
	rtt := s.now().Sub(time.UnixMilli(req.SentAt))
	if rtt > 0 {
		s.Health.RecordLatency(conn.ID, rtt)
	}
}
