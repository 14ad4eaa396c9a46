// ABOUTME: Room-keyed websocket hub for real-time message fan-out
// ABOUTME: Clients join/leave conversation rooms; send-message frames re-broadcast as new-message

package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Hashimp6/beeeuu-chat/internal/chat"
)

const (
	// connSendBuffer is the per-connection outbound frame buffer.
	connSendBuffer = 64

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// wsConn is one live client connection and the set of rooms it has joined.
type wsConn struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan chat.Frame
	done   chan struct{}

	closeOnce sync.Once
}

// close signals writePump to shut down. The send channel is never closed:
// a broadcast racing a disconnect writes into a dead buffer instead of
// panicking the process.
func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub manages room membership and fan-out for all live connections.
// Room membership is the only partition: the single connection per session
// is shared across every conversation the user has open.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*wsConn]struct{} // conversationID -> members
	conns     map[*wsConn]map[string]struct{} // member -> joined rooms
	authorize func(conversationID, userID string) bool
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[*wsConn]struct{}),
		conns:  make(map[*wsConn]map[string]struct{}),
		logger: logger.With("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway is bearer-token authenticated; browser origin
			// checks do not apply to the TUI/mobile clients it serves.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetAuthorizer configures a room membership check. When set, a join for a
// conversation the user does not participate in is silently ignored.
func (h *Hub) SetAuthorizer(fn func(conversationID, userID string) bool) {
	h.authorize = fn
}

// ServeWS upgrades an authenticated request to a websocket connection and
// pumps frames until the peer disconnects. userID comes from the verified
// session credential, never from the wire.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	c := &wsConn{
		id:     uuid.New().String(),
		userID: userID,
		conn:   conn,
		send:   make(chan chat.Frame, connSendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[c] = make(map[string]struct{})
	h.mu.Unlock()

	h.logger.Debug("connection established", "conn_id", c.id, "user_id", userID)

	go h.writePump(c)
	h.readPump(c)
}

// readPump processes inbound frames until the connection drops.
func (h *Hub) readPump(c *wsConn) {
	defer h.dropConn(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame chat.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("connection read error", "conn_id", c.id, "error", err)
			}
			return
		}

		if frame.ConversationID == "" {
			continue
		}

		switch frame.Type {
		case chat.FrameJoin:
			h.join(frame.ConversationID, c)
		case chat.FrameLeave:
			h.leave(frame.ConversationID, c)
		case chat.FrameSend:
			// Only members of a room may re-broadcast into it.
			if frame.Message == nil || !h.isMember(frame.ConversationID, c) {
				continue
			}
			h.Broadcast(frame.ConversationID, frame.Message, c)
		default:
			h.logger.Debug("unknown frame type", "type", frame.Type, "conn_id", c.id)
		}
	}
}

// writePump writes outbound frames and periodic pings.
func (h *Hub) writePump(c *wsConn) {
	ticker := time.NewTicker(pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// join adds the connection to a room. Joining twice is a no-op.
func (h *Hub) join(conversationID string, c *wsConn) {
	if h.authorize != nil && !h.authorize(conversationID, c.userID) {
		h.logger.Warn("join rejected", "conversation_id", conversationID, "user_id", c.userID)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return // connection already dropped
	}
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*wsConn]struct{})
	}
	h.rooms[conversationID][c] = struct{}{}
	h.conns[c][conversationID] = struct{}{}

	h.logger.Debug("joined room", "conversation_id", conversationID, "conn_id", c.id, "user_id", c.userID)
}

// leave removes the connection from a room. Leaving a room the connection
// never joined is a no-op.
func (h *Hub) leave(conversationID string, c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conversationID, c)
}

func (h *Hub) leaveLocked(conversationID string, c *wsConn) {
	members, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, conversationID)
	}
	if joined, ok := h.conns[c]; ok {
		delete(joined, conversationID)
	}

	h.logger.Debug("left room", "conversation_id", conversationID, "conn_id", c.id)
}

// isMember reports whether the connection has joined the room.
func (h *Hub) isMember(conversationID string, c *wsConn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

// Broadcast delivers a new-message frame to every member of the room except
// the originating connection. Non-blocking: frames are dropped for members
// whose send buffers are full.
func (h *Hub) Broadcast(conversationID string, msg *chat.WireMessage, exclude *wsConn) {
	frame := chat.Frame{
		Type:           chat.FrameNew,
		ConversationID: conversationID,
		Message:        msg,
	}

	h.mu.RLock()
	members, ok := h.rooms[conversationID]
	if !ok || len(members) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*wsConn, 0, len(members))
	for member := range members {
		if member == exclude {
			continue
		}
		targets = append(targets, member)
	}
	h.mu.RUnlock()

	for _, member := range targets {
		select {
		case <-member.done:
			// Member disconnected between the snapshot and the send.
		case member.send <- frame:
			// Sent
		default:
			h.logger.Debug("dropped frame for slow connection",
				"conversation_id", conversationID,
				"conn_id", member.id)
		}
	}
}

// dropConn removes a connection from every room it joined and closes it.
func (h *Hub) dropConn(c *wsConn) {
	h.mu.Lock()
	joined := h.conns[c]
	for conversationID := range joined {
		h.leaveLocked(conversationID, c)
	}
	delete(h.conns, c)
	h.mu.Unlock()

	c.close()
	c.conn.Close()

	h.logger.Debug("connection dropped", "conn_id", c.id, "user_id", c.userID)
}

// Close drops every live connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.dropConn(c)
	}
}
