// ABOUTME: HTTP client for the chat gateway REST API with JWT bearer auth
// ABOUTME: REST is the durable path; every send resolves here regardless of socket state

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Hashimp6/beeeuu-chat/internal/chat"
)

// Client talks to the chat gateway REST API on behalf of one session.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client for the gateway at baseURL, authenticating every
// request with the given session credential. Pass nil logger for default.
func New(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "client"),
	}
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %s (status %d)", e.Message, e.Status)
}

// Conversation is one entry in the conversation list view.
type Conversation struct {
	ID              string     `json:"conversation_id"`
	CounterpartID   string     `json:"counterpart_id"`
	LastMessageText string     `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SendParams describes a message create request.
type SendParams struct {
	ConversationID string
	ReceiverID     string
	Text           string
	Kind           chat.Kind
	Attachment     *chat.Attachment
	// ClientRef is the sender's temporary id; the gateway dedupes on it so
	// a retried request cannot persist the message twice.
	ClientRef string
}

// CreateConversation resolves or creates the conversation with the given
// counterpart and returns its id. Idempotent per participant pair.
func (c *Client) CreateConversation(ctx context.Context, receiverID string) (string, error) {
	var resp struct {
		ConversationID string `json:"conversation_id"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/conversations",
		map[string]string{"receiver_id": receiverID}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}

// ListConversations returns the session user's conversations, most
// recently active first.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// GetHistory returns the ordered message history for a conversation.
func (c *Client) GetHistory(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var resp struct {
		Messages []chat.WireMessage `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations/"+conversationID, nil, &resp); err != nil {
		return nil, err
	}

	msgs := make([]chat.Message, 0, len(resp.Messages))
	for _, w := range resp.Messages {
		msgs = append(msgs, w.ToMessage())
	}
	return msgs, nil
}

// SendMessage persists a message and returns the confirmed record carrying
// its durable id.
func (c *Client) SendMessage(ctx context.Context, p SendParams) (chat.Message, error) {
	kind := p.Kind
	if kind == "" {
		kind = chat.KindText
	}

	body := map[string]any{
		"receiver_id":     p.ReceiverID,
		"text":            p.Text,
		"conversation_id": p.ConversationID,
		"message_type":    kind,
	}
	if p.Attachment != nil {
		body["attachment_data"] = p.Attachment
	}
	if p.ClientRef != "" {
		body["client_ref"] = p.ClientRef
	}

	var wire chat.WireMessage
	if err := c.doJSON(ctx, http.MethodPost, "/api/messages/send", body, &wire); err != nil {
		return chat.Message{}, err
	}
	return wire.ToMessage(), nil
}

// doJSON issues one authenticated JSON request and decodes the response
// into out (which may be nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
