// ABOUTME: Tests for the websocket transport client
// ABOUTME: Runs against the real gateway hub; verifies rooms, handlers and state transitions

package transport

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hashimp6/beeeuu-chat/internal/auth"
	"github.com/Hashimp6/beeeuu-chat/internal/chat"
	"github.com/Hashimp6/beeeuu-chat/internal/client"
	"github.com/Hashimp6/beeeuu-chat/internal/dedupe"
	"github.com/Hashimp6/beeeuu-chat/internal/gateway"
	"github.com/Hashimp6/beeeuu-chat/internal/store"
)

type testEnv struct {
	server   *httptest.Server
	verifier *auth.JWTVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dd := dedupe.New(time.Minute, 100)
	t.Cleanup(dd.Close)

	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	server := httptest.NewServer(gateway.New(st, verifier, dd, gateway.Options{}).Handler())
	t.Cleanup(server.Close)

	return &testEnv{server: server, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.verifier.Generate(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) transport(t *testing.T, userID string) *Client {
	t.Helper()
	c := New(e.server.URL, e.token(t, userID), nil)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)
	return c
}

// conversation creates a conversation between two users via the REST API.
func (e *testEnv) conversation(t *testing.T, from, to string) string {
	t.Helper()
	c := client.New(e.server.URL, e.token(t, from), nil)
	convID, err := c.CreateConversation(context.Background(), to)
	require.NoError(t, err)
	return convID
}

func confirmed(convID, sender, receiver, text string) chat.Message {
	return chat.Message{
		ID:             chat.DurableID("msg-" + text),
		ConversationID: convID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Kind:           chat.KindText,
		Body:           text,
		CreatedAt:      time.Now(),
		State:          chat.StateConfirmed,
	}
}

func waitFor(t *testing.T, ch <-chan chat.Message, timeout time.Duration) (chat.Message, bool) {
	t.Helper()
	select {
	case m := <-ch:
		return m, true
	case <-time.After(timeout):
		return chat.Message{}, false
	}
}

func TestTransport_ConnectState(t *testing.T) {
	env := newTestEnv(t)
	tc := env.transport(t, "alice")
	assert.Equal(t, StateConnected, tc.State())

	tc.Close()
	assert.Equal(t, StateDisconnected, tc.State())
}

func TestTransport_ConnectError(t *testing.T) {
	tc := New("http://127.0.0.1:1", "token", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := tc.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, StateConnectError, tc.State())

	// A downed transport must not fail silently into a panic on send.
	sendErr := tc.SendMessage("conv", confirmed("conv", "alice", "bob", "x"))
	assert.Error(t, sendErr)
	tc.Close()
}

func TestTransport_RoomDelivery(t *testing.T) {
	env := newTestEnv(t)
	convID := env.conversation(t, "alice", "bob")

	alice := env.transport(t, "alice")
	bob := env.transport(t, "bob")

	received := make(chan chat.Message, 4)
	bob.Handle(convID, func(m chat.Message) { received <- m })
	bob.JoinRoom(convID)
	alice.JoinRoom(convID)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, alice.SendMessage(convID, confirmed(convID, "alice", "bob", "hello")))

	m, ok := waitFor(t, received, 2*time.Second)
	require.True(t, ok, "bob should receive the push")
	assert.Equal(t, "hello", m.Body)
	assert.Equal(t, chat.StateConfirmed, m.State)
	assert.True(t, m.ID.IsDurable())
}

func TestTransport_JoinIdempotent_SingleHandler(t *testing.T) {
	env := newTestEnv(t)
	convID := env.conversation(t, "alice", "bob")

	alice := env.transport(t, "alice")
	bob := env.transport(t, "bob")

	first := make(chan chat.Message, 4)
	second := make(chan chat.Message, 4)
	bob.Handle(convID, func(m chat.Message) { first <- m })
	bob.JoinRoom(convID)
	bob.JoinRoom(convID) // no-op
	// Re-registering replaces the prior handler, no handler leak.
	bob.Handle(convID, func(m chat.Message) { second <- m })
	alice.JoinRoom(convID)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, alice.SendMessage(convID, confirmed(convID, "alice", "bob", "once")))

	m, ok := waitFor(t, second, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, "once", m.Body)

	_, ok = waitFor(t, first, 300*time.Millisecond)
	assert.False(t, ok, "replaced handler must not fire")
}

func TestTransport_LeaveStopsDispatch(t *testing.T) {
	env := newTestEnv(t)
	convID := env.conversation(t, "alice", "bob")

	alice := env.transport(t, "alice")
	bob := env.transport(t, "bob")

	received := make(chan chat.Message, 4)
	bob.Handle(convID, func(m chat.Message) { received <- m })
	bob.JoinRoom(convID)
	alice.JoinRoom(convID)
	time.Sleep(100 * time.Millisecond)

	bob.LeaveRoom(convID)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, alice.SendMessage(convID, confirmed(convID, "alice", "bob", "late")))

	_, ok := waitFor(t, received, 300*time.Millisecond)
	assert.False(t, ok, "left room must not dispatch")
}

func TestTransport_RoomIsolation(t *testing.T) {
	env := newTestEnv(t)
	convAB := env.conversation(t, "alice", "bob")
	convAC := env.conversation(t, "alice", "carol")

	alice := env.transport(t, "alice")
	bob := env.transport(t, "bob")

	// Bob listens on A/B; a push for A/C must never reach his handler
	// even though both rooms are known to the hub at the same time.
	received := make(chan chat.Message, 4)
	bob.Handle(convAB, func(m chat.Message) { received <- m })
	bob.JoinRoom(convAB)
	alice.JoinRoom(convAB)
	alice.JoinRoom(convAC)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, alice.SendMessage(convAC, confirmed(convAC, "alice", "carol", "for-carol")))

	_, ok := waitFor(t, received, 300*time.Millisecond)
	assert.False(t, ok, "message for conversation X must not reach room Y")
}

func TestTransport_RefusesUnconfirmedPush(t *testing.T) {
	env := newTestEnv(t)
	tc := env.transport(t, "alice")

	pending := chat.Message{
		ID:             chat.NewLocalID(),
		ConversationID: "conv",
		SenderID:       "alice",
		Body:           "draft",
		State:          chat.StatePending,
	}
	assert.Error(t, tc.SendMessage("conv", pending))
}
