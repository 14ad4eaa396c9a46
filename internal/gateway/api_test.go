// ABOUTME: Tests for the gateway REST handlers
// ABOUTME: Covers idempotent conversation create, send/history flow, dedupe and authorization

package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hashimp6/beeeuu-chat/internal/auth"
	"github.com/Hashimp6/beeeuu-chat/internal/chat"
	"github.com/Hashimp6/beeeuu-chat/internal/dedupe"
	"github.com/Hashimp6/beeeuu-chat/internal/store"
)

type testGateway struct {
	server   *httptest.Server
	verifier *auth.JWTVerifier
	store    *store.SQLiteStore
	gw       *Gateway
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dd := dedupe.New(time.Minute, 100)
	t.Cleanup(dd.Close)

	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	g := New(st, verifier, dd, Options{})

	server := httptest.NewServer(g.Handler())
	t.Cleanup(server.Close)

	return &testGateway{server: server, verifier: verifier, store: st, gw: g}
}

func (tg *testGateway) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := tg.verifier.Generate(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (tg *testGateway) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, tg.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAPI_RequiresAuth(t *testing.T) {
	tg := newTestGateway(t)

	for _, path := range []string{"/api/conversations", "/api/messages/send"} {
		resp := tg.do(t, http.MethodPost, path, "", map[string]string{})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := tg.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateConversation_IdempotentPerPair(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.token(t, "alice")
	bob := tg.token(t, "bob")

	resp := tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{ReceiverID: "bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[CreateConversationResponse](t, resp)
	require.NotEmpty(t, created.ConversationID)

	// Repeat from the same side: existing id, not a new one.
	resp = tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{ReceiverID: "bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ConversationID, decode[CreateConversationResponse](t, resp).ConversationID)

	// Repeat from the other side: same pair, same id.
	resp = tg.do(t, http.MethodPost, "/api/conversations", bob, CreateConversationRequest{ReceiverID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created.ConversationID, decode[CreateConversationResponse](t, resp).ConversationID)
}

func TestCreateConversation_Validation(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.token(t, "alice")

	resp := tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{ReceiverID: "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewConversation_EmptyHistory(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.token(t, "alice")

	resp := tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{ReceiverID: "bob"})
	created := decode[CreateConversationResponse](t, resp)

	resp = tg.do(t, http.MethodGet, "/api/conversations/"+created.ConversationID, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[HistoryResponse](t, resp)
	assert.Empty(t, history.Messages)
}

func TestSendMessage_FullFlow(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.token(t, "alice")
	bob := tg.token(t, "bob")

	resp := tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{ReceiverID: "bob"})
	convID := decode[CreateConversationResponse](t, resp).ConversationID

	resp = tg.do(t, http.MethodPost, "/api/messages/send", alice, SendMessageRequest{
		ReceiverID:     "bob",
		Text:           "Hello",
		ConversationID: convID,
		MessageType:    chat.KindText,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sent := decode[chat.WireMessage](t, resp)
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, "alice", sent.SenderID)
	assert.Equal(t, "Hello", sent.Text)

	// History from the receiver's side shows the message.
	resp = tg.do(t, http.MethodGet, "/api/conversations/"+convID, bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[HistoryResponse](t, resp)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, sent.ID, history.Messages[0].ID)

	// The conversation list carries the denormalized last message.
	resp = tg.do(t, http.MethodGet, "/api/conversations", bob, nil)
	list := decode[ListConversationsResponse](t, resp)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "Hello", list.Conversations[0].LastMessageText)
	assert.Equal(t, "alice", list.Conversations[0].CounterpartID)
}

func TestSendMessage_DedupeOnClientRef(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.token(t, "alice")

	resp := tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{ReceiverID: "bob"})
	convID := decode[CreateConversationResponse](t, resp).ConversationID

	req := SendMessageRequest{
		ReceiverID:     "bob",
		Text:           "Hello",
		ConversationID: convID,
		ClientRef:      "local-ref-1",
	}

	resp = tg.do(t, http.MethodPost, "/api/messages/send", alice, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[chat.WireMessage](t, resp)

	// Retried send with the same ref resolves to the original record.
	resp = tg.do(t, http.MethodPost, "/api/messages/send", alice, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[chat.WireMessage](t, resp)
	assert.Equal(t, first.ID, second.ID)

	resp = tg.do(t, http.MethodGet, "/api/conversations/"+convID, alice, nil)
	history := decode[HistoryResponse](t, resp)
	assert.Len(t, history.Messages, 1, "retry must not double-insert")
}

func TestSendMessage_Validation(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.token(t, "alice")

	resp := tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{ReceiverID: "bob"})
	convID := decode[CreateConversationResponse](t, resp).ConversationID

	tests := []struct {
		name string
		req  SendMessageRequest
		want int
	}{
		{"missing conversation", SendMessageRequest{ReceiverID: "bob", Text: "hi"}, http.StatusBadRequest},
		{"receiver not the counterpart", SendMessageRequest{ReceiverID: "carol", ConversationID: convID, Text: "hi"}, http.StatusBadRequest},
		{"blank text", SendMessageRequest{ReceiverID: "bob", ConversationID: convID, Text: "   "}, http.StatusBadRequest},
		{"unknown kind", SendMessageRequest{ReceiverID: "bob", ConversationID: convID, Text: "hi", MessageType: "gif"}, http.StatusBadRequest},
		{"attachment without payload", SendMessageRequest{ReceiverID: "bob", ConversationID: convID, MessageType: chat.KindAttachment}, http.StatusBadRequest},
		{"unknown conversation", SendMessageRequest{ReceiverID: "bob", ConversationID: "nope", Text: "hi"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tg.do(t, http.MethodPost, "/api/messages/send", alice, tt.req)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSendMessage_ReceiverDerivedFromConversation(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.token(t, "alice")

	resp := tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{ReceiverID: "bob"})
	convID := decode[CreateConversationResponse](t, resp).ConversationID

	// The receiver is always the conversation's other participant, whether
	// or not the body names one.
	resp = tg.do(t, http.MethodPost, "/api/messages/send", alice, SendMessageRequest{
		ConversationID: convID,
		Text:           "hi",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sent := decode[chat.WireMessage](t, resp)
	assert.Equal(t, "bob", sent.ReceiverID)

	// Naming a third user is rejected; nothing is persisted for them.
	resp = tg.do(t, http.MethodPost, "/api/messages/send", alice, SendMessageRequest{
		ReceiverID:     "carol",
		ConversationID: convID,
		Text:           "misdirected",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = tg.do(t, http.MethodGet, "/api/conversations/"+convID, alice, nil)
	history := decode[HistoryResponse](t, resp)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "bob", history.Messages[0].ReceiverID)
}

func TestSendMessage_Attachment(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.token(t, "alice")

	resp := tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{ReceiverID: "bob"})
	convID := decode[CreateConversationResponse](t, resp).ConversationID

	resp = tg.do(t, http.MethodPost, "/api/messages/send", alice, SendMessageRequest{
		ReceiverID:     "bob",
		ConversationID: convID,
		MessageType:    chat.KindAttachment,
		AttachmentData: &chat.Attachment{Title: "Appointment", Reference: "apt-42"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sent := decode[chat.WireMessage](t, resp)
	assert.Equal(t, chat.KindAttachment, sent.Kind)
	require.NotNil(t, sent.Attachment)
	assert.Equal(t, "apt-42", sent.Attachment.Reference)
}

func TestConversationAccess_ParticipantsOnly(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.token(t, "alice")
	mallory := tg.token(t, "mallory")

	resp := tg.do(t, http.MethodPost, "/api/conversations", alice, CreateConversationRequest{ReceiverID: "bob"})
	convID := decode[CreateConversationResponse](t, resp).ConversationID

	resp = tg.do(t, http.MethodGet, "/api/conversations/"+convID, mallory, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = tg.do(t, http.MethodPost, "/api/messages/send", mallory, SendMessageRequest{
		ReceiverID:     "bob",
		ConversationID: convID,
		Text:           "hi",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = tg.do(t, http.MethodGet, "/api/conversations/nope", alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
