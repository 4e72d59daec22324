package ws

import (
	"context"
	"sync"
	"time"

	"github.com/mentorlink/internal/logger"
	"github.com/mentorlink/internal/model"
)

// MembershipChecker resolves whether a user belongs to a group. Room joins
// for group conversations are validated against it.
type MembershipChecker interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

// PersonalRoom names the room every connection of a user is implicitly a
// member of, used for user-targeted pushes outside any open conversation.
func PersonalRoom(userID string) string {
	return "user:" + userID
}

// Hub owns all active connections and their room memberships. Membership is
// per connection and lives only as long as the connection: clients re-join
// their rooms after every reconnect.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[*Client]struct{}
	membership map[*Client]map[string]struct{}
	total      int
	maxConns   int
	groups     MembershipChecker
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(groups MembershipChecker, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		membership: make(map[*Client]map[string]struct{}),
		maxConns:   maxConns,
		groups:     groups,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for c := range h.membership {
		allClients = append(allClients, c)
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.membership = make(map[*Client]map[string]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.membership[c]; !ok {
		h.membership[c] = make(map[string]struct{})
	}
	h.total++
	h.joinLocked(c, PersonalRoom(c.userID))
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	roomSet, ok := h.membership[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	for room := range roomSet {
		h.leaveLocked(c, room)
	}
	delete(h.membership, c)
	h.total--
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
}

// joinLocked adds c to a room. Idempotent. Caller holds h.mu.
func (h *Hub) joinLocked(c *Client, room string) {
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[room] = set
	}
	set[c] = struct{}{}
	m, ok := h.membership[c]
	if !ok {
		// Join raced ahead of registration; track the room anyway so the
		// eventual unregister releases it.
		m = make(map[string]struct{})
		h.membership[c] = m
	}
	m[room] = struct{}{}
}

// leaveLocked removes c from a room. Caller holds h.mu.
func (h *Hub) leaveLocked(c *Client, room string) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	if m, ok := h.membership[c]; ok {
		delete(m, room)
	}
}

func (h *Hub) inRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.membership[c]
	if !ok {
		return false
	}
	_, ok = m[room]
	return ok
}

// HandleEvent dispatches incoming socket events.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, ev IncomingEvent) {
	switch ev.Type {
	case EventJoinRoom:
		h.handleJoin(ctx, c, ev)
	case EventLeaveRoom:
		h.handleLeave(c, ev)
	case EventTyping:
		h.handleTyping(c, ev)
	default:
		h.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "unknown event type"})
	}
}

// handleJoin validates that the caller may enter the conversation before
// adding the connection to the room.
func (h *Hub) handleJoin(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.ConversationID == "" {
		h.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "conversation_id required"})
		return
	}

	allowed, err := h.mayJoin(ctx, c, ev.ConversationID)
	if err != nil {
		logger.Errorf("ws check membership room=%s user=%s: %v", ev.ConversationID, c.userID, err)
		h.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "internal error"})
		return
	}
	if !allowed {
		h.sendToClient(c, OutgoingEvent{Type: EventError, Payload: "not a member"})
		return
	}

	h.mu.Lock()
	h.joinLocked(c, ev.ConversationID)
	h.mu.Unlock()
}

func (h *Hub) mayJoin(ctx context.Context, c *Client, conversationID string) (bool, error) {
	if a, b, ok := model.DirectConversationMembers(conversationID); ok {
		return a == c.userID || b == c.userID, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.groups.IsMember(ctx, conversationID, c.userID)
}

func (h *Hub) handleLeave(c *Client, ev IncomingEvent) {
	if ev.ConversationID == "" || ev.ConversationID == PersonalRoom(c.userID) {
		return
	}
	h.mu.Lock()
	h.leaveLocked(c, ev.ConversationID)
	h.mu.Unlock()
}

// handleTyping relays an ephemeral typing hint to the other members of one
// room. No persistence, no delivery guarantee.
func (h *Hub) handleTyping(c *Client, ev IncomingEvent) {
	if ev.ConversationID == "" || !h.inRoom(c, ev.ConversationID) {
		return
	}
	h.BroadcastToRoomExcept(ev.ConversationID, OutgoingEvent{
		Type: EventUserTyping,
		Payload: TypingPayload{
			ConversationID: ev.ConversationID,
			UserID:         c.userID,
			IsTyping:       ev.IsTyping,
		},
	}, c)
}

// BroadcastToRoom pushes an event to every connection currently joined to
// the room. A room with no members is a silent no-op.
func (h *Hub) BroadcastToRoom(room string, ev OutgoingEvent) {
	h.BroadcastToRoomExcept(room, ev, nil)
}

// BroadcastToRoomExcept is BroadcastToRoom minus one connection (typically
// the sender of an ephemeral signal).
func (h *Hub) BroadcastToRoomExcept(room string, ev OutgoingEvent, except *Client) {
	h.mu.RLock()
	set, ok := h.rooms[room]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(set))
	for c := range set {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, ev)
	}
}

// UserOnline reports whether the user has at least one active connection.
func (h *Hub) UserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[PersonalRoom(userID)]) > 0
}

func (h *Hub) sendToClient(c *Client, ev OutgoingEvent) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
