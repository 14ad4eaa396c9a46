// ABOUTME: Tests for the websocket hub
// ABOUTME: Verifies room fan-out, sender exclusion, room isolation and join authorization

package gateway

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hashimp6/beeeuu-chat/internal/chat"
)

// dialWS connects a websocket client for the given user.
func dialWS(t *testing.T, tg *testGateway, userID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "/ws?token=" + tg.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// createConversation opens a conversation between two users via the API.
func createConversation(t *testing.T, tg *testGateway, from, to string) string {
	t.Helper()
	resp := tg.do(t, http.MethodPost, "/api/conversations", tg.token(t, from), CreateConversationRequest{ReceiverID: to})
	return decode[CreateConversationResponse](t, resp).ConversationID
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame chat.Frame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

// readFrame reads one frame or fails after the timeout.
func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) (chat.Frame, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	var frame chat.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return chat.Frame{}, false
	}
	return frame, true
}

func wireMessage(convID, sender, receiver, text string) *chat.WireMessage {
	return &chat.WireMessage{
		ID:             "msg-" + text,
		ConversationID: convID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Kind:           chat.KindText,
		Text:           text,
		CreatedAt:      time.Now(),
	}
}

func TestHub_BroadcastToRoomPeers(t *testing.T) {
	tg := newTestGateway(t)
	convID := createConversation(t, tg, "alice", "bob")

	alice := dialWS(t, tg, "alice")
	bob := dialWS(t, tg, "bob")

	sendFrame(t, alice, chat.Frame{Type: chat.FrameJoin, ConversationID: convID})
	sendFrame(t, bob, chat.Frame{Type: chat.FrameJoin, ConversationID: convID})
	// Joins are processed asynchronously by the read pumps.
	time.Sleep(100 * time.Millisecond)

	sendFrame(t, alice, chat.Frame{
		Type:           chat.FrameSend,
		ConversationID: convID,
		Message:        wireMessage(convID, "alice", "bob", "hello"),
	})

	frame, ok := readFrame(t, bob, 2*time.Second)
	require.True(t, ok, "bob should receive the broadcast")
	assert.Equal(t, chat.FrameNew, frame.Type)
	assert.Equal(t, convID, frame.ConversationID)
	require.NotNil(t, frame.Message)
	assert.Equal(t, "hello", frame.Message.Text)

	// The sender must not receive their own echo from the hub.
	_, ok = readFrame(t, alice, 300*time.Millisecond)
	assert.False(t, ok, "sender should not get its own message back")
}

func TestHub_RoomIsolation(t *testing.T) {
	tg := newTestGateway(t)
	convAB := createConversation(t, tg, "alice", "bob")
	convAC := createConversation(t, tg, "alice", "carol")

	bob := dialWS(t, tg, "bob")
	carol := dialWS(t, tg, "carol")
	alice := dialWS(t, tg, "alice")

	sendFrame(t, bob, chat.Frame{Type: chat.FrameJoin, ConversationID: convAB})
	sendFrame(t, carol, chat.Frame{Type: chat.FrameJoin, ConversationID: convAC})
	sendFrame(t, alice, chat.Frame{Type: chat.FrameJoin, ConversationID: convAB})
	time.Sleep(100 * time.Millisecond)

	sendFrame(t, alice, chat.Frame{
		Type:           chat.FrameSend,
		ConversationID: convAB,
		Message:        wireMessage(convAB, "alice", "bob", "for-bob"),
	})

	frame, ok := readFrame(t, bob, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, "for-bob", frame.Message.Text)

	// A message for conversation A/B never reaches the A/C room.
	_, ok = readFrame(t, carol, 300*time.Millisecond)
	assert.False(t, ok, "carol must not see another room's message")
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	tg := newTestGateway(t)
	convID := createConversation(t, tg, "alice", "bob")

	alice := dialWS(t, tg, "alice")
	bob := dialWS(t, tg, "bob")

	sendFrame(t, alice, chat.Frame{Type: chat.FrameJoin, ConversationID: convID})
	sendFrame(t, bob, chat.Frame{Type: chat.FrameJoin, ConversationID: convID})
	time.Sleep(100 * time.Millisecond)

	sendFrame(t, bob, chat.Frame{Type: chat.FrameLeave, ConversationID: convID})
	time.Sleep(100 * time.Millisecond)

	sendFrame(t, alice, chat.Frame{
		Type:           chat.FrameSend,
		ConversationID: convID,
		Message:        wireMessage(convID, "alice", "bob", "late"),
	})

	_, ok := readFrame(t, bob, 300*time.Millisecond)
	assert.False(t, ok, "a left room must not deliver")
}

func TestHub_JoinRequiresParticipation(t *testing.T) {
	tg := newTestGateway(t)
	convID := createConversation(t, tg, "alice", "bob")

	alice := dialWS(t, tg, "alice")
	mallory := dialWS(t, tg, "mallory")

	sendFrame(t, alice, chat.Frame{Type: chat.FrameJoin, ConversationID: convID})
	sendFrame(t, mallory, chat.Frame{Type: chat.FrameJoin, ConversationID: convID})
	time.Sleep(100 * time.Millisecond)

	// Alice broadcasts; mallory's rejected join must not receive it.
	sendFrame(t, alice, chat.Frame{
		Type:           chat.FrameSend,
		ConversationID: convID,
		Message:        wireMessage(convID, "alice", "bob", "secret"),
	})

	_, ok := readFrame(t, mallory, 300*time.Millisecond)
	assert.False(t, ok, "non-participant join must be rejected")
}

func TestHub_BroadcastSurvivesMidBroadcastDisconnect(t *testing.T) {
	tg := newTestGateway(t)
	convID := createConversation(t, tg, "alice", "bob")

	alice := dialWS(t, tg, "alice")
	bob := dialWS(t, tg, "bob")

	sendFrame(t, alice, chat.Frame{Type: chat.FrameJoin, ConversationID: convID})
	sendFrame(t, bob, chat.Frame{Type: chat.FrameJoin, ConversationID: convID})
	time.Sleep(100 * time.Millisecond)

	h := tg.gw.hub

	// Snapshot bob's server-side connection the way Broadcast does before
	// releasing the room lock.
	h.mu.RLock()
	var peer *wsConn
	for member := range h.rooms[convID] {
		if member.userID == "bob" {
			peer = member
		}
	}
	h.mu.RUnlock()
	require.NotNil(t, peer)

	// Bob disconnects between the snapshot and the delivery. The delivery
	// half must not be able to hit a closed channel.
	h.dropConn(peer)

	frame := chat.Frame{
		Type:           chat.FrameNew,
		ConversationID: convID,
		Message:        wireMessage(convID, "alice", "bob", "racing"),
	}
	require.NotPanics(t, func() {
		select {
		case <-peer.done:
		case peer.send <- frame:
		default:
		}
	})

	// The hub keeps serving: bob reconnects and delivery resumes.
	bob2 := dialWS(t, tg, "bob")
	sendFrame(t, bob2, chat.Frame{Type: chat.FrameJoin, ConversationID: convID})
	time.Sleep(100 * time.Millisecond)

	sendFrame(t, alice, chat.Frame{
		Type:           chat.FrameSend,
		ConversationID: convID,
		Message:        wireMessage(convID, "alice", "bob", "after"),
	})

	got, ok := readFrame(t, bob2, 2*time.Second)
	require.True(t, ok, "delivery must resume after the disconnect")
	assert.Equal(t, "after", got.Message.Text)
}

func TestWS_RequiresToken(t *testing.T) {
	tg := newTestGateway(t)

	wsURL := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
