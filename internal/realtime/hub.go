package realtime

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ecotrack-api/internal/domain"
)

// Rooms every session may be placed in. Per-user rooms are derived with
// UserRoom.
const (
	RoomAllUsers    = "users"
	RoomAdmins      = "admins"
	RoomSuperAdmins = "super_admins"
)

// UserRoom names the private room of one user.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Event names pushed over the live channel.
const (
	EventWelcome          = "welcome"
	EventNotification     = "notification"
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
	EventPong             = "pong"
	EventRoomJoined       = "room_joined"
	EventRoomLeft         = "room_left"
	EventError            = "error"
)

// Event is the wire unit sent to live sessions.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// Session describes one authenticated live connection. Sessions are
// ephemeral: created at handshake, destroyed at disconnect, rebuilt from
// scratch on reconnect. Nothing here is persisted.
type Session struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Sink receives events for one session. *Client implements it over a
// websocket; tests substitute an in-memory recorder.
type Sink interface {
	// Send enqueues without blocking; false means the session's buffer is
	// full and the event was dropped.
	Send(ev Event) bool
	Close()
}

type member struct {
	session Session
	sink    Sink
	rooms   map[string]struct{}
}

// Hub is the in-process presence registry: every live session, its
// identity, and its room memberships. All membership mutations happen as a
// single atomic unit under one lock, so no reader ever observes a session
// in the global room but missing from its role room. Single-process by
// design; clustering needs an external shared presence store.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*member
	rooms    map[string]map[string]*member
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*member),
		rooms:    make(map[string]map[string]*member),
		logger:   logger,
	}
}

// assignedRooms returns the room set a session joins at connect time.
func assignedRooms(sess Session) []string {
	rooms := []string{RoomAllUsers, UserRoom(sess.UserID)}
	if domain.IsAdminRole(sess.Role) {
		rooms = append(rooms, RoomAdmins)
	}
	if sess.Role == domain.RoleSuperAdmin {
		rooms = append(rooms, RoomSuperAdmins)
	}
	return rooms
}

// Connect registers an authenticated session and joins it to all of its
// assigned rooms in one atomic step. It then greets the session and tells
// the admin room a user appeared (best effort).
func (h *Hub) Connect(sess Session, sink Sink) {
	m := &member{session: sess, sink: sink, rooms: make(map[string]struct{})}

	h.mu.Lock()
	h.sessions[sess.SessionID] = m
	for _, room := range assignedRooms(sess) {
		h.joinLocked(m, room)
	}
	total := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("session connected",
		"session_id", sess.SessionID, "user_id", sess.UserID, "role", sess.Role, "total", total)

	sink.Send(Event{Name: EventWelcome, Data: sess})
	if sess.Role == domain.RoleUser {
		h.Emit(RoomAdmins, EventUserConnected, map[string]any{
			"user_id":      sess.UserID,
			"username":     sess.Username,
			"connected_at": sess.ConnectedAt,
		})
	}
}

// Disconnect removes the session and all its room memberships atomically,
// closes its sink, and tells the admin room the user left (best effort).
// Unknown session ids are ignored so the call is idempotent.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	m, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	for room := range m.rooms {
		h.leaveLocked(m, room)
	}
	delete(h.sessions, sessionID)
	total := len(h.sessions)
	h.mu.Unlock()

	m.sink.Close()
	h.logger.Info("session disconnected",
		"session_id", sessionID, "user_id", m.session.UserID, "total", total)

	if m.session.Role == domain.RoleUser {
		h.Emit(RoomAdmins, EventUserDisconnected, map[string]any{
			"user_id":         m.session.UserID,
			"username":        m.session.Username,
			"disconnected_at": time.Now().UTC(),
		})
	}
}

func (h *Hub) joinLocked(m *member, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*member)
	}
	h.rooms[room][m.session.SessionID] = m
	m.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(m *member, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, m.session.SessionID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(m.rooms, room)
}

// JoinRoom adds a session to a custom room. Rooms with the admin_ prefix
// require an admin role.
func (h *Hub) JoinRoom(sessionID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if strings.HasPrefix(room, "admin_") && !domain.IsAdminRole(m.session.Role) {
		return fmt.Errorf("room %s: %w", room, domain.ErrForbidden)
	}
	h.joinLocked(m, room)
	return nil
}

// LeaveRoom removes a session from one room.
func (h *Hub) LeaveRoom(sessionID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	h.leaveLocked(m, room)
	return nil
}

// Emit fans an event out to every session currently in the room. Best
// effort: no acknowledgment, no cross-session ordering guarantee; sessions
// whose buffers are full just miss the event.
func (h *Hub) Emit(room, event string, data any) {
	h.mu.RLock()
	members := h.rooms[room]
	sinks := make([]Sink, 0, len(members))
	for _, m := range members {
		sinks = append(sinks, m.sink)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, s := range sinks {
		if !s.Send(Event{Name: event, Data: data}) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("emit dropped for slow sessions", "room", room, "event", event, "dropped", dropped)
	}
}

// IsOnline reports whether the user has at least one live session.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[UserRoom(userID)]) > 0
}

// Count returns the number of live sessions, optionally restricted to a
// role set. Linear scan, fine at low-thousands of sessions.
func (h *Hub) Count(roles ...string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(roles) == 0 {
		return len(h.sessions)
	}
	n := 0
	for _, m := range h.sessions {
		for _, role := range roles {
			if m.session.Role == role {
				n++
				break
			}
		}
	}
	return n
}

// CloseAll drops every session, closing all sinks. Used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	members := make([]*member, 0, len(h.sessions))
	for _, m := range h.sessions {
		members = append(members, m)
	}
	h.sessions = make(map[string]*member)
	h.rooms = make(map[string]map[string]*member)
	h.mu.Unlock()

	for _, m := range members {
		m.sink.Close()
	}
	h.logger.Info("closed all live sessions", "count", len(members))
}
