package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// clientMessage is what a connected session may send us.
type clientMessage struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
}

// Client pumps events between one websocket connection and the hub.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	logger    *slog.Logger

	// mu orders Send against Close: the hub emits from snapshots taken
	// outside its own lock, so a Send can arrive after the session was
	// removed and must observe closed instead of hitting a closed channel.
	mu     sync.Mutex
	send   chan Event
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID string, logger *slog.Logger) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan Event, sendBuffer),
		logger:    logger,
	}
}

// Send implements Sink. Non-blocking: a full buffer drops the event, and a
// closed client reports false instead of panicking.
func (c *Client) Send(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close implements Sink. Safe to call more than once; the write pump shuts
// the connection down once the channel drains.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c.sessionID)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", "session_id", c.sessionID, "err", err)
			}
			return
		}
		c.handle(msg)
	}
}

// handle services the small set of client-initiated events.
func (c *Client) handle(msg clientMessage) {
	switch msg.Event {
	case "ping":
		c.Send(Event{Name: EventPong, Data: map[string]any{"timestamp": time.Now().UTC()}})
	case "join_room":
		if msg.Room == "" {
			return
		}
		if err := c.hub.JoinRoom(c.sessionID, msg.Room); err != nil {
			c.Send(Event{Name: EventError, Data: map[string]any{"message": "unauthorized"}})
			return
		}
		c.Send(Event{Name: EventRoomJoined, Data: map[string]any{"room": msg.Room}})
	case "leave_room":
		if msg.Room == "" {
			return
		}
		if err := c.hub.LeaveRoom(c.sessionID, msg.Room); err == nil {
			c.Send(Event{Name: EventRoomLeft, Data: map[string]any{"room": msg.Room}})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// The hub closed this session.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
