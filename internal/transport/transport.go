// ABOUTME: Websocket transport client owning the single live connection per session
// ABOUTME: Room membership partitions delivery; the transport accelerates, REST remains the source of truth

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hashimp6/beeeuu-chat/internal/chat"
)

// State is the connection lifecycle of the transport.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateConnectError is terminal per attempt; the client keeps retrying
	// in the background.
	StateConnectError State = "connect-error"
)

// ErrNotConnected is returned by SendMessage while the connection is down.
// Callers treat it as non-fatal: the REST path already persisted the message.
var ErrNotConnected = errors.New("transport not connected")

// Handler receives messages pushed for one joined room.
type Handler func(chat.Message)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Client maintains one websocket connection and the set of joined rooms.
// Sends attempted while disconnected simply fail with ErrNotConnected;
// message durability never depends on the transport.
type Client struct {
	wsURL  string
	logger *slog.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	rooms    map[string]struct{}
	handlers map[string]Handler
	started  bool
	cancel   context.CancelFunc
}

// New creates a transport client for the gateway at baseURL (http or https;
// the scheme is rewritten to ws/wss), authenticating with the session
// credential. Pass nil logger for default.
func New(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)

	return &Client{
		wsURL:    wsURL,
		logger:   logger.With("component", "transport"),
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:    StateDisconnected,
		rooms:    make(map[string]struct{}),
		handlers: make(map[string]Handler),
	}
}

// Connect dials the gateway and starts the receive loop. The first dial is
// synchronous so callers can log its outcome; whatever the result, a
// background loop keeps the connection alive with capped exponential
// backoff until ctx is cancelled or Close is called. A failed Connect
// never blocks message composition.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	err := c.dial()
	go c.run(runCtx)
	return err
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// JoinRoom subscribes the connection to a conversation's room. Idempotent:
// joining an already-joined room is a no-op. The membership survives
// reconnects.
func (c *Client) JoinRoom(conversationID string) {
	c.mu.Lock()
	if _, ok := c.rooms[conversationID]; ok {
		c.mu.Unlock()
		return
	}
	c.rooms[conversationID] = struct{}{}
	c.writeLocked(chat.Frame{Type: chat.FrameJoin, ConversationID: conversationID})
	c.mu.Unlock()

	c.logger.Debug("joined room", "conversation_id", conversationID)
}

// LeaveRoom unsubscribes from a room and drops its handler, so no stale
// event can reach a handler for a conversation the user navigated away
// from. Leaving an unjoined room is a no-op.
func (c *Client) LeaveRoom(conversationID string) {
	c.mu.Lock()
	if _, ok := c.rooms[conversationID]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.rooms, conversationID)
	delete(c.handlers, conversationID)
	c.writeLocked(chat.Frame{Type: chat.FrameLeave, ConversationID: conversationID})
	c.mu.Unlock()

	c.logger.Debug("left room", "conversation_id", conversationID)
}

// Handle registers the handler for a room's pushed messages. Exactly one
// handler is active per room; re-registering replaces the prior one.
func (c *Client) Handle(conversationID string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[conversationID] = h
}

// SendMessage pushes a confirmed message into the conversation's room so
// the counterpart receives it without polling. Returns ErrNotConnected
// while the connection is down; callers may ignore that, the message is
// already durable.
func (c *Client) SendMessage(conversationID string, m chat.Message) error {
	wire, ok := m.ToWire()
	if !ok {
		return errors.New("refusing to push unconfirmed message")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return ErrNotConnected
	}
	return c.writeLocked(chat.Frame{
		Type:           chat.FrameSend,
		ConversationID: conversationID,
		Message:        &wire,
	})
}

// Close tears the connection down and stops the retry loop.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
}

// dial attempts one connection and, on success, re-joins all rooms.
func (c *Client) dial() error {
	conn, _, err := c.dialer.Dial(c.wsURL, nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = StateConnectError
		c.logger.Warn("connect failed", "error", err)
		return err
	}

	c.conn = conn
	c.state = StateConnected

	// Re-establish room membership after a (re)connect.
	for conversationID := range c.rooms {
		c.writeLocked(chat.Frame{Type: chat.FrameJoin, ConversationID: conversationID})
	}

	c.logger.Debug("connected")
	return nil
}

// run owns the connection lifecycle: read until the connection drops, then
// redial with backoff until the context is cancelled.
func (c *Client) run(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			backoff = initialBackoff
			c.readLoop(ctx, conn)

			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.state = StateConnecting
			}
			c.mu.Unlock()
		}

		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)

		c.dial()
	}
}

// readLoop dispatches inbound frames until the connection errors.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame chat.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("connection lost", "error", err)
			}
			return
		}

		if frame.Type != chat.FrameNew || frame.Message == nil {
			continue
		}
		// Room isolation: only dispatch frames for rooms we are in, to the
		// handler registered for exactly that room, and never a frame whose
		// payload disagrees with its envelope.
		if frame.Message.ConversationID != frame.ConversationID {
			c.logger.Warn("dropping frame with mismatched conversation",
				"frame_conversation", frame.ConversationID,
				"message_conversation", frame.Message.ConversationID)
			continue
		}

		c.mu.Lock()
		_, joined := c.rooms[frame.ConversationID]
		handler := c.handlers[frame.ConversationID]
		c.mu.Unlock()

		if !joined || handler == nil {
			continue
		}
		handler(frame.Message.ToMessage())
	}
}

// writeLocked sends a frame if connected. Must be called with mu held.
func (c *Client) writeLocked(frame chat.Frame) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(frame); err != nil {
		c.logger.Debug("write failed", "error", err)
		return err
	}
	return nil
}
