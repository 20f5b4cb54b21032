// internal/rooms/registry.go

// Package rooms maps logical rooms to live connections and fans events out to
// them. Membership is ephemeral and reconstructible from the durable session
// participant lists; it is never consulted to decide a game outcome.
package rooms

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event is the outbound wire envelope.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Connection is one live websocket client as the registry sees it. Out is
// drained by the connection's write pump; writes never block the caller.
type Connection struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Out    chan []byte

	log *logrus.Logger
}

// NewConnection builds a Connection with a buffered outbound queue.
func NewConnection(userID uuid.UUID, log *logrus.Logger) *Connection {
	return &Connection{
		ID:     uuid.New(),
		UserID: userID,
		Out:    make(chan []byte, 64),
		log:    log,
	}
}

// Send marshals ev onto the outbound queue. If the queue is full or closed
// the event is dropped and logged; the health monitor will catch a dead peer.
func (c *Connection) Send(ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		c.log.WithError(err).WithField("event", ev.Type).Error("failed to marshal outbound event")
		return
	}
	select {
	case c.Out <- raw:
	default:
		c.log.WithFields(logrus.Fields{"conn": c.ID, "user": c.UserID, "event": ev.Type}).
			Warn("outbound queue full, dropping event")
	}
}

// Key identifies a room: ("game", <id>) or ("battle", <id>).
type Key struct {
	Type string
	ID   string
}

// GameRoom builds the key for a game session room.
func GameRoom(id uuid.UUID) Key { return Key{Type: "game", ID: id.String()} }

// BattleRoom builds the key for a battle session room.
func BattleRoom(id uuid.UUID) Key { return Key{Type: "battle", ID: id.String()} }

// Registry is the bidirectional room/connection index. It owns no game state;
// joins, leaves and cleanup are all O(1) per membership edge.
type Registry struct {
	mu sync.Mutex

	// rooms: room key -> conn id -> connection.
	rooms map[Key]map[uuid.UUID]*Connection
	// memberships: conn id -> set of room keys (inverse index for cleanup).
	memberships map[uuid.UUID]map[Key]struct{}
	// users: user id -> conn id -> connection, for direct sends.
	users map[uuid.UUID]map[uuid.UUID]*Connection

	log *logrus.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		rooms:       make(map[Key]map[uuid.UUID]*Connection),
		memberships: make(map[uuid.UUID]map[Key]struct{}),
		users:       make(map[uuid.UUID]map[uuid.UUID]*Connection),
		log:         log,
	}
}

// Register indexes a connection for direct user sends. Call once on connect.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users[conn.UserID] == nil {
		r.users[conn.UserID] = make(map[uuid.UUID]*Connection)
	}
	r.users[conn.UserID][conn.ID] = conn
}

// JoinRoom adds the connection to a room. Joining twice is a no-op.
func (r *Registry) JoinRoom(key Key, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[key] == nil {
		r.rooms[key] = make(map[uuid.UUID]*Connection)
	}
	r.rooms[key][conn.ID] = conn
	if r.memberships[conn.ID] == nil {
		r.memberships[conn.ID] = make(map[Key]struct{})
	}
	r.memberships[conn.ID][key] = struct{}{}
}

// LeaveRoom removes the connection from a room. Leaving a room the
// connection is not in is a no-op.
func (r *Registry) LeaveRoom(key Key, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveRoomLocked(key, conn.ID)
}

func (r *Registry) leaveRoomLocked(key Key, connID uuid.UUID) {
	if members, ok := r.rooms[key]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, key)
		}
	}
	if keys, ok := r.memberships[connID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.memberships, connID)
		}
	}
}

// RemoveConnection tears down every index entry for the connection. Call once
// on disconnect; the inverse index makes this O(rooms joined).
func (r *Registry) RemoveConnection(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.memberships[conn.ID] {
		r.leaveRoomLocked(key, conn.ID)
	}
	delete(r.memberships, conn.ID)
	if conns, ok := r.users[conn.UserID]; ok {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(r.users, conn.UserID)
		}
	}
}

// BroadcastToRoom delivers the event to every member, optionally excluding
// one connection (typically the sender). Delivery is at-least-once per live
// member; a slow member drops rather than blocks.
func (r *Registry) BroadcastToRoom(key Key, ev Event, exclude uuid.UUID) {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.rooms[key]))
	for id, conn := range r.rooms[key] {
		if id == exclude {
			continue
		}
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Send(ev)
	}
}

// SendToUser delivers the event to every connection of one user, for
// out-of-room notices such as a direct challenge. Returns false if the user
// has no live connections.
func (r *Registry) SendToUser(userID uuid.UUID, ev Event) bool {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.users[userID]))
	for _, conn := range r.users[userID] {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Send(ev)
	}
	return len(conns) > 0
}

// Members returns the connection ids currently in a room.
func (r *Registry) Members(key Key) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.rooms[key]))
	for id := range r.rooms[key] {
		ids = append(ids, id)
	}
	return ids
}
