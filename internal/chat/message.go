// ABOUTME: Domain types for conversations and messages on the client side
// ABOUTME: Messages are tagged variants (text or attachment) with a delivery state

package chat

import (
	"strings"
	"time"
)

// Kind discriminates message payload variants.
type Kind string

const (
	KindText       Kind = "text"
	KindAttachment Kind = "attachment"
)

// DeliveryState is the client-observed lifecycle of a message. It is never
// persisted; the durable store only ever sees confirmed messages.
type DeliveryState string

const (
	// StatePending marks an optimistic entry awaiting store confirmation.
	StatePending DeliveryState = "pending"
	// StateConfirmed marks an entry whose durable id has been received.
	StateConfirmed DeliveryState = "confirmed"
	// StateFailed marks an entry whose send attempt errored. Failed entries
	// stay visible and are eligible for manual retry.
	StateFailed DeliveryState = "failed"
)

// Attachment is the structured payload carried by KindAttachment messages,
// e.g. an appointment summary shared into the conversation.
type Attachment struct {
	Title     string `json:"title,omitempty"`
	Reference string `json:"reference,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// Message is one entry in a conversation.
type Message struct {
	ID             MessageID
	ConversationID string
	SenderID       string
	ReceiverID     string
	Kind           Kind
	Body           string
	Attachment     *Attachment
	CreatedAt      time.Time
	State          DeliveryState
}

// ConfirmationOf reports whether a durable message is the store's
// confirmation of a still-pending local entry: same sender, same body,
// and the pending side has no durable id yet. This is what keeps a sender
// from seeing their own message twice when the transport echoes it back.
func (m Message) ConfirmationOf(pending Message) bool {
	return m.ID.IsDurable() &&
		pending.State == StatePending &&
		pending.ID.IsLocal() &&
		m.SenderID == pending.SenderID &&
		m.Body == pending.Body
}

// Valid reports whether the message is well-formed enough to merge into a
// visible list. The reconciler drops invalid events instead of raising.
func (m Message) Valid() bool {
	if m.ID.IsZero() || m.SenderID == "" || m.ConversationID == "" {
		return false
	}
	if m.Kind == KindText && strings.TrimSpace(m.Body) == "" {
		return false
	}
	return true
}
