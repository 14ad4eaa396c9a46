// ABOUTME: Wire types shared by the gateway, REST client and socket transport
// ABOUTME: Keeps both halves of the REST/socket contract from drifting apart

package chat

import "time"

// WireMessage is a persisted message as it travels over REST responses and
// socket frames. A wire message always carries a durable id.
type WireMessage struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	ReceiverID     string      `json:"receiver_id"`
	Kind           Kind        `json:"message_type"`
	Text           string      `json:"text,omitempty"`
	Attachment     *Attachment `json:"attachment_data,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ToMessage converts a wire message to a confirmed domain message.
func (w WireMessage) ToMessage() Message {
	return Message{
		ID:             DurableID(w.ID),
		ConversationID: w.ConversationID,
		SenderID:       w.SenderID,
		ReceiverID:     w.ReceiverID,
		Kind:           w.Kind,
		Body:           w.Text,
		Attachment:     w.Attachment,
		CreatedAt:      w.CreatedAt,
		State:          StateConfirmed,
	}
}

// ToWire converts a confirmed message to its wire representation. Only
// durable messages travel the wire; pending and failed entries stay local.
func (m Message) ToWire() (WireMessage, bool) {
	if !m.ID.IsDurable() {
		return WireMessage{}, false
	}
	return WireMessage{
		ID:             m.ID.Durable(),
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Kind:           m.Kind,
		Text:           m.Body,
		Attachment:     m.Attachment,
		CreatedAt:      m.CreatedAt,
	}, true
}

// Frame types for the socket transport.
const (
	FrameJoin  = "join"
	FrameLeave = "leave"
	FrameSend  = "send-message"
	FrameNew   = "new-message"
)

// Frame is one socket event. Join/leave frames carry only a conversation
// id; send-message and new-message frames also carry the message.
type Frame struct {
	Type           string       `json:"type"`
	ConversationID string       `json:"conversation_id"`
	Message        *WireMessage `json:"message,omitempty"`
}
