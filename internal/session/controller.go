// ABOUTME: Conversation session controller orchestrating open, subscribe, and teardown
// ABOUTME: One active conversation at a time; leaves the previous room before joining the next

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Hashimp6/beeeuu-chat/internal/chat"
	"github.com/Hashimp6/beeeuu-chat/internal/client"
	"github.com/Hashimp6/beeeuu-chat/internal/transport"
)

// ConversationAPI is the durable-store surface the controller needs.
// *client.Client satisfies it.
type ConversationAPI interface {
	CreateConversation(ctx context.Context, receiverID string) (string, error)
	GetHistory(ctx context.Context, conversationID string) ([]chat.Message, error)
	SendMessage(ctx context.Context, p client.SendParams) (chat.Message, error)
}

// RoomTransport is the realtime surface the controller needs.
// *transport.Client satisfies it. A nil RoomTransport degrades the
// session to REST-only: sends still work, pushes never arrive.
type RoomTransport interface {
	JoinRoom(conversationID string)
	LeaveRoom(conversationID string)
	Handle(conversationID string, h transport.Handler)
	SendMessage(conversationID string, m chat.Message) error
}

// Target identifies which conversation to open: the counterpart user,
// and optionally an already-known conversation id. With a known id the
// create round-trip is skipped.
type Target struct {
	UserID         string
	ConversationID string
}

// Conversation is one open session: the resolved id, the live message
// list, and the send pipeline bound to it.
type Conversation struct {
	ID          string
	Counterpart string
	Reconciler  *Reconciler
	Composer    *Composer
}

// Options tunes controller construction.
type Options struct {
	// SendTimeout bounds each durable send. Zero means DefaultSendTimeout.
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Controller drives conversation sessions for one authenticated user.
// It holds at most one conversation open; opening a new one tears down
// the previous room subscription first, so a rapid switch between
// conversations cannot leave a stale subscription delivering into the
// wrong list.
type Controller struct {
	selfID    string
	api       ConversationAPI
	transport RoomTransport
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	active *Conversation
}

// NewController creates a controller for the given user. The transport
// may be nil for a REST-only session.
func NewController(selfID string, api ConversationAPI, tr RoomTransport, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Controller{
		selfID:    selfID,
		api:       api,
		transport: tr,
		timeout:   timeout,
		logger:    logger.With("component", "session"),
	}
}

// Open resolves the target conversation, loads its history, and swaps
// the realtime subscription over to it. Exactly one create request and
// one room join happen per open. On a history fetch failure no
// subscription is established and the previous conversation, if any,
// stays active.
func (c *Controller) Open(ctx context.Context, target Target) (*Conversation, error) {
	if target.UserID == "" && target.ConversationID == "" {
		return nil, ErrMissingTarget
	}

	convID := target.ConversationID
	if convID == "" {
		id, err := c.api.CreateConversation(ctx, target.UserID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
		}
		convID = id
	}

	history, err := c.api.GetHistory(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	rec := NewReconciler(convID, c.logger)
	rec.Load(history)

	var emitter MessageEmitter
	if c.transport != nil {
		emitter = c.transport
	}
	conv := &Conversation{
		ID:          convID,
		Counterpart: target.UserID,
		Reconciler:  rec,
		Composer:    NewComposer(c.selfID, target.UserID, convID, c.api, emitter, rec, c.timeout, c.logger),
	}

	c.mu.Lock()
	prev := c.active
	c.active = conv
	c.mu.Unlock()

	if c.transport != nil {
		if prev != nil && prev.ID != convID {
			c.transport.LeaveRoom(prev.ID)
		}
		c.transport.Handle(convID, rec.Merge)
		c.transport.JoinRoom(convID)
	}

	c.logger.Info("conversation opened", "conversation_id", convID, "history_len", len(history))
	return conv, nil
}

// Active returns the currently open conversation, or nil.
func (c *Controller) Active() *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close tears down the active conversation's room subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	prev := c.active
	c.active = nil
	c.mu.Unlock()

	if prev != nil && c.transport != nil {
		c.transport.LeaveRoom(prev.ID)
	}
}
