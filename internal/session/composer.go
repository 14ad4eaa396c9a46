// ABOUTME: Optimistic send pipeline for one open conversation
// ABOUTME: Single-flight sends with temp id reconciliation and realtime echo on success

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Hashimp6/beeeuu-chat/internal/chat"
	"github.com/Hashimp6/beeeuu-chat/internal/client"
)

// DefaultSendTimeout bounds how long a send waits on the durable store
// before the pending entry is marked failed.
const DefaultSendTimeout = 15 * time.Second

// MessageSender is the durable path. Every send resolves here; the
// realtime transport never substitutes for it.
type MessageSender interface {
	SendMessage(ctx context.Context, p client.SendParams) (chat.Message, error)
}

// MessageEmitter is the realtime echo path, taken only after the durable
// store confirms a send. Emit failures are logged and ignored: the
// counterpart still sees the message on their next history fetch.
type MessageEmitter interface {
	SendMessage(conversationID string, m chat.Message) error
}

// Composer runs the send pipeline for one open conversation:
//
//  1. validate and reject empty bodies
//  2. insert an optimistic pending entry under a fresh temp id
//  3. persist through the durable store, deduped on the temp id
//  4. confirm or fail the pending entry by temp id
//  5. on success, echo the confirmed message over the realtime transport
//
// At most one send is in flight at a time; concurrent submissions are
// rejected with ErrSendInFlight, never queued.
type Composer struct {
	selfID         string
	receiverID     string
	conversationID string
	sender         MessageSender
	emitter        MessageEmitter
	rec            *Reconciler
	timeout        time.Duration
	logger         *slog.Logger

	inflight chan struct{}
}

// NewComposer creates a composer bound to one conversation. The emitter
// may be nil when no realtime transport is available; sends then rely on
// the counterpart polling history. Pass zero timeout for the default.
func NewComposer(selfID, receiverID, conversationID string, sender MessageSender, emitter MessageEmitter, rec *Reconciler, timeout time.Duration, logger *slog.Logger) *Composer {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Composer{
		selfID:         selfID,
		receiverID:     receiverID,
		conversationID: conversationID,
		sender:         sender,
		emitter:        emitter,
		rec:            rec,
		timeout:        timeout,
		logger:         logger.With("component", "composer", "conversation_id", conversationID),
		inflight:       make(chan struct{}, 1),
	}
	c.inflight <- struct{}{}
	return c
}

// Send persists a text message. It returns the confirmed message on
// success; on failure the optimistic entry stays visible in the failed
// state and the returned error wraps ErrSendFailed.
func (c *Composer) Send(ctx context.Context, body string) (chat.Message, error) {
	return c.send(ctx, chat.KindText, body, nil)
}

// SendAttachment persists an attachment message with an optional caption.
func (c *Composer) SendAttachment(ctx context.Context, caption string, att chat.Attachment) (chat.Message, error) {
	return c.send(ctx, chat.KindAttachment, caption, &att)
}

// Retry re-sends a previously failed entry under a fresh temp id. The
// failed entry itself is never mutated again; the retry produces a new
// pending entry that runs the normal pipeline.
func (c *Composer) Retry(ctx context.Context, failedID chat.MessageID) (chat.Message, error) {
	prev, ok := c.rec.Get(failedID)
	if !ok {
		return chat.Message{}, fmt.Errorf("%w: no entry %s", ErrSendFailed, failedID)
	}
	if prev.State != chat.StateFailed {
		return chat.Message{}, fmt.Errorf("%w: entry %s is not failed", ErrSendFailed, failedID)
	}
	return c.send(ctx, prev.Kind, prev.Body, prev.Attachment)
}

// Sending reports whether a send is currently in flight.
func (c *Composer) Sending() bool {
	select {
	case tok := <-c.inflight:
		c.inflight <- tok
		return false
	default:
		return true
	}
}

func (c *Composer) send(ctx context.Context, kind chat.Kind, body string, att *chat.Attachment) (chat.Message, error) {
	body = strings.TrimSpace(body)
	if kind == chat.KindText && body == "" {
		return chat.Message{}, ErrEmptyBody
	}
	if c.conversationID == "" {
		return chat.Message{}, ErrNoConversation
	}
	if c.receiverID == "" {
		return chat.Message{}, ErrMissingTarget
	}

	select {
	case <-c.inflight:
	default:
		return chat.Message{}, ErrSendInFlight
	}
	defer func() { c.inflight <- struct{}{} }()

	localID := chat.NewLocalID()
	pending := chat.Message{
		ID:             localID,
		ConversationID: c.conversationID,
		SenderID:       c.selfID,
		ReceiverID:     c.receiverID,
		Kind:           kind,
		Body:           body,
		Attachment:     att,
		CreatedAt:      time.Now().UTC(),
		State:          chat.StatePending,
	}
	c.rec.InsertPending(pending)

	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	durable, err := c.sender.SendMessage(sendCtx, client.SendParams{
		ConversationID: c.conversationID,
		ReceiverID:     c.receiverID,
		Text:           body,
		Kind:           kind,
		Attachment:     att,
		ClientRef:      localID.String(),
	})
	if err != nil {
		c.rec.Fail(localID)
		c.logger.Warn("send failed", "temp_id", localID.String(), "error", err)
		return chat.Message{}, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	c.rec.Confirm(localID, durable)

	if c.emitter != nil {
		if err := c.emitter.SendMessage(c.conversationID, durable); err != nil {
			c.logger.Debug("realtime echo skipped", "message_id", durable.ID.String(), "error", err)
		}
	}
	return durable, nil
}
