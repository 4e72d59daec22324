package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorlink/internal/model"
)

type staticMembership struct {
	members map[string][]string // group id -> user ids
}

func (s *staticMembership) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	for _, id := range s.members[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(&staticMembership{members: map[string][]string{
		"group-1": {"u1", "u2"},
	}}, 0)
}

func addTestClient(h *Hub, userID string) *Client {
	c := NewClient(h, nil, userID, model.RoleMentee)
	h.addClient(c)
	return c
}

func recvEvent(t *testing.T, c *Client) OutgoingEvent {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return OutgoingEvent{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterJoinsPersonalRoom(t *testing.T) {
	h := newTestHub(t)
	c := addTestClient(h, "u1")

	assert.True(t, h.UserOnline("u1"))
	assert.False(t, h.UserOnline("u2"))

	h.BroadcastToRoom(PersonalRoom("u1"), OutgoingEvent{Type: EventNewMessage})
	ev := recvEvent(t, c)
	assert.Equal(t, EventNewMessage, ev.Type)
}

func TestJoinRequiresMembership(t *testing.T) {
	h := newTestHub(t)
	member := addTestClient(h, "u1")
	stranger := addTestClient(h, "u3")
	ctx := context.Background()

	h.HandleEvent(ctx, member, IncomingEvent{Type: EventJoinRoom, ConversationID: "group-1"})
	assert.True(t, h.inRoom(member, "group-1"))
	assertNoEvent(t, member)

	h.HandleEvent(ctx, stranger, IncomingEvent{Type: EventJoinRoom, ConversationID: "group-1"})
	assert.False(t, h.inRoom(stranger, "group-1"))
	ev := recvEvent(t, stranger)
	assert.Equal(t, EventError, ev.Type)
}

func TestJoinIdempotent(t *testing.T) {
	h := newTestHub(t)
	c := addTestClient(h, "u1")
	ctx := context.Background()

	h.HandleEvent(ctx, c, IncomingEvent{Type: EventJoinRoom, ConversationID: "group-1"})
	h.HandleEvent(ctx, c, IncomingEvent{Type: EventJoinRoom, ConversationID: "group-1"})

	h.BroadcastToRoom("group-1", OutgoingEvent{Type: EventNewMessage})
	recvEvent(t, c)
	// A double join must not double delivery.
	assertNoEvent(t, c)
}

func TestDirectThreadJoin(t *testing.T) {
	h := newTestHub(t)
	participant := addTestClient(h, "u1")
	stranger := addTestClient(h, "u3")
	ctx := context.Background()
	thread := model.DirectConversationID("u1", "u2")

	h.HandleEvent(ctx, participant, IncomingEvent{Type: EventJoinRoom, ConversationID: thread})
	assert.True(t, h.inRoom(participant, thread))

	h.HandleEvent(ctx, stranger, IncomingEvent{Type: EventJoinRoom, ConversationID: thread})
	assert.False(t, h.inRoom(stranger, thread))
	ev := recvEvent(t, stranger)
	assert.Equal(t, EventError, ev.Type)
}

func TestTypingRelayedToOthersOnly(t *testing.T) {
	h := newTestHub(t)
	c1 := addTestClient(h, "u1")
	c2 := addTestClient(h, "u2")
	ctx := context.Background()

	h.HandleEvent(ctx, c1, IncomingEvent{Type: EventJoinRoom, ConversationID: "group-1"})
	h.HandleEvent(ctx, c2, IncomingEvent{Type: EventJoinRoom, ConversationID: "group-1"})

	h.HandleEvent(ctx, c1, IncomingEvent{Type: EventTyping, ConversationID: "group-1", IsTyping: true})

	ev := recvEvent(t, c2)
	require.Equal(t, EventUserTyping, ev.Type)
	payload, ok := ev.Payload.(TypingPayload)
	require.True(t, ok)
	assert.Equal(t, "u1", payload.UserID)
	assert.True(t, payload.IsTyping)

	assertNoEvent(t, c1)
}

func TestTypingOutsideRoomDropped(t *testing.T) {
	h := newTestHub(t)
	c1 := addTestClient(h, "u1")
	c2 := addTestClient(h, "u2")
	ctx := context.Background()

	h.HandleEvent(ctx, c2, IncomingEvent{Type: EventJoinRoom, ConversationID: "group-1"})
	// u1 never joined the room; the hint is silently dropped.
	h.HandleEvent(ctx, c1, IncomingEvent{Type: EventTyping, ConversationID: "group-1", IsTyping: true})
	assertNoEvent(t, c2)
}

func TestLeavePersonalRoomIgnored(t *testing.T) {
	h := newTestHub(t)
	c := addTestClient(h, "u1")

	h.HandleEvent(context.Background(), c, IncomingEvent{
		Type: EventLeaveRoom, ConversationID: PersonalRoom("u1"),
	})
	assert.True(t, h.UserOnline("u1"))
}

func TestLeaveUnknownRoomNoOp(t *testing.T) {
	h := newTestHub(t)
	c := addTestClient(h, "u1")

	h.HandleEvent(context.Background(), c, IncomingEvent{
		Type: EventLeaveRoom, ConversationID: "never-joined",
	})
	assert.True(t, h.UserOnline("u1"))
}

func TestDisconnectReleasesRooms(t *testing.T) {
	h := newTestHub(t)
	c1 := addTestClient(h, "u1")
	c2 := addTestClient(h, "u2")
	ctx := context.Background()

	h.HandleEvent(ctx, c1, IncomingEvent{Type: EventJoinRoom, ConversationID: "group-1"})
	h.HandleEvent(ctx, c2, IncomingEvent{Type: EventJoinRoom, ConversationID: "group-1"})

	h.removeClient(c1)
	assert.False(t, h.UserOnline("u1"))

	h.BroadcastToRoom("group-1", OutgoingEvent{Type: EventNewMessage})
	recvEvent(t, c2)
}

func TestBroadcastEmptyRoomNoOp(t *testing.T) {
	h := newTestHub(t)
	h.BroadcastToRoom("nobody-here", OutgoingEvent{Type: EventNewMessage})
}

func TestConnectionLimit(t *testing.T) {
	h := NewHub(&staticMembership{}, 1)
	addTestClient(h, "u1")
	addTestClient(h, "u2")

	assert.True(t, h.UserOnline("u1"))
	assert.False(t, h.UserOnline("u2"), "connection over the limit must be rejected")
}

func TestUnknownEventAnswersError(t *testing.T) {
	h := newTestHub(t)
	c := addTestClient(h, "u1")

	h.HandleEvent(context.Background(), c, IncomingEvent{Type: "dance"})
	ev := recvEvent(t, c)
	assert.Equal(t, EventError, ev.Type)
}
