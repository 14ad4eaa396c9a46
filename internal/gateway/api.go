// ABOUTME: HTTP JSON handlers for the conversation and message REST surface
// ABOUTME: Conversation create is idempotent per participant pair; sends dedupe on client ref

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Hashimp6/beeeuu-chat/internal/auth"
	"github.com/Hashimp6/beeeuu-chat/internal/chat"
	"github.com/Hashimp6/beeeuu-chat/internal/store"
)

// CreateConversationRequest is the JSON request body for POST /api/conversations.
type CreateConversationRequest struct {
	ReceiverID string `json:"receiver_id"`
}

// CreateConversationResponse is the JSON response for POST /api/conversations.
type CreateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// ConversationSummary is one entry in the GET /api/conversations response.
type ConversationSummary struct {
	ConversationID  string     `json:"conversation_id"`
	CounterpartID   string     `json:"counterpart_id"`
	LastMessageText string     `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}

// HistoryResponse is the JSON response for GET /api/conversations/{id}.
type HistoryResponse struct {
	Messages []chat.WireMessage `json:"messages"`
}

// SendMessageRequest is the JSON request body for POST /api/messages/send.
// ClientRef is the sender's temporary message id; resubmitting the same ref
// returns the originally created message instead of inserting a duplicate.
// ReceiverID is optional and serves only as a cross-check: the stored
// receiver is always the conversation's other participant.
type SendMessageRequest struct {
	ReceiverID     string           `json:"receiver_id"`
	Text           string           `json:"text"`
	ConversationID string           `json:"conversation_id"`
	MessageType    chat.Kind        `json:"message_type"`
	AttachmentData *chat.Attachment `json:"attachment_data,omitempty"`
	ClientRef      string           `json:"client_ref,omitempty"`
}

// errorResponse is the JSON error envelope for all API failures.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleListConversations serves GET /api/conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFromContext(r.Context())

	convs, err := g.store.ListConversations(r.Context(), userID)
	if err != nil {
		g.logger.Error("listing conversations failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	resp := ListConversationsResponse{Conversations: make([]ConversationSummary, 0, len(convs))}
	for _, conv := range convs {
		resp.Conversations = append(resp.Conversations, ConversationSummary{
			ConversationID:  conv.ID,
			CounterpartID:   conv.Counterpart(userID),
			LastMessageText: conv.LastMessageText,
			LastMessageAt:   conv.LastMessageAt,
			CreatedAt:       conv.CreatedAt,
			UpdatedAt:       conv.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateConversation serves POST /api/conversations. Creation is
// idempotent per unordered participant pair: an existing conversation id is
// returned instead of minting a duplicate.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFromContext(r.Context())

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReceiverID == "" {
		writeError(w, http.StatusBadRequest, "receiver_id required")
		return
	}
	if req.ReceiverID == userID {
		writeError(w, http.StatusBadRequest, "cannot open a conversation with yourself")
		return
	}

	// Fast path: the pair already has a conversation.
	if conv, err := g.store.GetConversationByPair(r.Context(), userID, req.ReceiverID); err == nil {
		writeJSON(w, http.StatusOK, CreateConversationResponse{ConversationID: conv.ID})
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		g.logger.Error("conversation lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	now := time.Now()
	conv := &store.Conversation{
		ID:           uuid.New().String(),
		ParticipantA: userID,
		ParticipantB: req.ReceiverID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := g.store.CreateConversation(r.Context(), conv); err != nil {
		// Another request may have created the pair between our lookup and
		// insert attempt; resolve the race by looking up again.
		if errors.Is(err, store.ErrDuplicateConversation) {
			existing, lookupErr := g.store.GetConversationByPair(r.Context(), userID, req.ReceiverID)
			if lookupErr == nil {
				g.logger.Debug("found existing conversation after race", "conversation_id", existing.ID)
				writeJSON(w, http.StatusOK, CreateConversationResponse{ConversationID: existing.ID})
				return
			}
			g.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
		}
		g.logger.Error("conversation create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	g.logger.Debug("conversation created", "conversation_id", conv.ID, "user_id", userID)
	writeJSON(w, http.StatusCreated, CreateConversationResponse{ConversationID: conv.ID})
}

// handleGetConversation serves GET /api/conversations/{id}: the ordered
// message history for one conversation.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFromContext(r.Context())
	conversationID := r.PathValue("id")

	conv, err := g.store.GetConversation(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("conversation fetch failed", "error", err, "conversation_id", conversationID)
		writeError(w, http.StatusInternalServerError, "failed to fetch conversation")
		return
	}
	if conv.ParticipantA != userID && conv.ParticipantB != userID {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	msgs, err := g.store.GetMessages(r.Context(), conversationID, g.historyLimit)
	if err != nil {
		g.logger.Error("history fetch failed", "error", err, "conversation_id", conversationID)
		writeError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	resp := HistoryResponse{Messages: make([]chat.WireMessage, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, toWireMessage(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSendMessage serves POST /api/messages/send.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFromContext(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id required")
		return
	}

	kind := req.MessageType
	if kind == "" {
		kind = chat.KindText
	}
	switch kind {
	case chat.KindText:
		if strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "text required")
			return
		}
	case chat.KindAttachment:
		if req.AttachmentData == nil {
			writeError(w, http.StatusBadRequest, "attachment_data required")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown message_type")
		return
	}

	// A retried send with a seen client ref returns the original record.
	if req.ClientRef != "" {
		if messageID, ok := g.dedupe.Lookup(req.ClientRef); ok {
			if existing, err := g.store.GetMessage(r.Context(), messageID); err == nil {
				g.logger.Debug("duplicate send resolved from dedupe cache",
					"client_ref", req.ClientRef, "message_id", messageID)
				writeJSON(w, http.StatusOK, toWireMessage(existing))
				return
			}
		}
	}

	conv, err := g.store.GetConversation(r.Context(), req.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("conversation fetch failed", "error", err, "conversation_id", req.ConversationID)
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	if conv.ParticipantA != userID && conv.ParticipantB != userID {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	// Sender and receiver both come from the conversation, not the request:
	// the sender is the verified token subject, the receiver is the other
	// participant. A receiver_id in the body naming anyone else is rejected.
	receiverID := conv.Counterpart(userID)
	if req.ReceiverID != "" && req.ReceiverID != receiverID {
		writeError(w, http.StatusBadRequest, "receiver_id is not the other participant")
		return
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		SenderID:       userID,
		ReceiverID:     receiverID,
		Body:           req.Text,
		Kind:           string(kind),
		CreatedAt:      time.Now(),
	}
	if req.AttachmentData != nil {
		raw, err := json.Marshal(req.AttachmentData)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid attachment_data")
			return
		}
		msg.AttachmentJSON = string(raw)
	}

	if err := g.store.SaveMessage(r.Context(), msg); err != nil {
		g.logger.Error("message save failed", "error", err, "conversation_id", req.ConversationID)
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	// Mark only after successful persistence.
	if req.ClientRef != "" {
		g.dedupe.Mark(req.ClientRef, msg.ID)
	}

	g.logger.Debug("message stored",
		"message_id", msg.ID,
		"conversation_id", msg.ConversationID,
		"sender", userID)

	writeJSON(w, http.StatusCreated, toWireMessage(msg))
}

// toWireMessage converts a stored message to its wire representation.
func toWireMessage(m *store.Message) chat.WireMessage {
	wire := chat.WireMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Kind:           chat.Kind(m.Kind),
		Text:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
	if m.AttachmentJSON != "" {
		var att chat.Attachment
		if err := json.Unmarshal([]byte(m.AttachmentJSON), &att); err == nil {
			wire.Attachment = &att
		}
	}
	return wire
}
