package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorlink/internal/model"
)

// newSessionServer runs a hub plus a minimal upgrade handler so tests can
// drive full read/write pumps over real connections.
func newSessionServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := newTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		clientCtx, clientCancel := context.WithCancel(context.Background())
		client := NewClient(h, conn, userID, model.RoleMentee)
		client.Start(clientCtx, clientCancel)
		h.Register(client)
	}))
	t.Cleanup(srv.Close)
	return h, srv
}

func dialSession(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func readSessionEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestSessionRoomFanOut(t *testing.T) {
	h, srv := newSessionServer(t)

	c1 := dialSession(t, srv, "u1")
	c2 := dialSession(t, srv, "u2")
	waitFor(t, func() bool { return h.UserOnline("u1") && h.UserOnline("u2") }, "both users online")

	join := `{"type":"join_room","conversation_id":"group-1"}`
	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte(join)))
	require.NoError(t, c2.WriteMessage(websocket.TextMessage, []byte(join)))
	waitFor(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.rooms["group-1"]) == 2
	}, "both sessions joined the room")

	h.BroadcastToRoom("group-1", OutgoingEvent{
		Type:    EventNewMessage,
		Payload: map[string]string{"content": "hello room"},
	})

	for _, conn := range []*websocket.Conn{c1, c2} {
		ev := readSessionEvent(t, conn)
		assert.Equal(t, string(EventNewMessage), ev["type"])
	}
}

func TestSessionTypingOverWire(t *testing.T) {
	h, srv := newSessionServer(t)

	c1 := dialSession(t, srv, "u1")
	c2 := dialSession(t, srv, "u2")
	waitFor(t, func() bool { return h.UserOnline("u1") && h.UserOnline("u2") }, "both users online")

	join := `{"type":"join_room","conversation_id":"group-1"}`
	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte(join)))
	require.NoError(t, c2.WriteMessage(websocket.TextMessage, []byte(join)))
	waitFor(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.rooms["group-1"]) == 2
	}, "both sessions joined the room")

	typing := `{"type":"typing","conversation_id":"group-1","is_typing":true}`
	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte(typing)))

	ev := readSessionEvent(t, c2)
	require.Equal(t, string(EventUserTyping), ev["type"])
	payload, ok := ev["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u1", payload["user_id"])
	assert.Equal(t, true, payload["is_typing"])
}

func TestSessionDisconnectGoesOffline(t *testing.T) {
	h, srv := newSessionServer(t)

	c1 := dialSession(t, srv, "u1")
	waitFor(t, func() bool { return h.UserOnline("u1") }, "user online")

	c1.Close()
	waitFor(t, func() bool { return !h.UserOnline("u1") }, "user offline after disconnect")
}
