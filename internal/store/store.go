// ABOUTME: Store interface and data types for chat persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when a conversation for the same
// participant pair already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Conversation is a persistent two-party thread. The last-message columns
// are denormalized for the conversation list view.
type Conversation struct {
	ID              string
	ParticipantA    string
	ParticipantB    string
	LastMessageText string
	LastMessageAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Counterpart returns the other participant from the given user's view.
func (c *Conversation) Counterpart(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message kind constants. AttachmentJSON is only set for attachment kinds.
const (
	KindText       = "text"
	KindAttachment = "attachment"
)

// Message is a persisted message within a conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Body           string
	Kind           string // "text" or "attachment"
	AttachmentJSON string // structured payload for attachment kinds, as JSON
	CreatedAt      time.Time
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByPair(ctx context.Context, userA, userB string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	Close() error
}

// PairKey returns the canonical key for an unordered participant pair.
// Both orderings of the same two users map to the same key, which is what
// the UNIQUE index uses to enforce at most one conversation per pair.
func PairKey(userA, userB string) string {
	if strings.Compare(userA, userB) > 0 {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}
