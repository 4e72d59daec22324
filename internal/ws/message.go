package ws

type EventType string

const (
	// Client to server.
	EventJoinRoom  EventType = "join_room"
	EventLeaveRoom EventType = "leave_room"
	EventTyping    EventType = "typing"

	// Server to client.
	EventNewMessage    EventType = "new_message"
	EventUserTyping    EventType = "user_typing"
	EventMessagePinned EventType = "message_pinned"
	EventError         EventType = "error"
)

// IncomingEvent is what the client sends over the socket. Sending messages
// happens over REST; the socket only manages room membership and ephemeral
// signals.
type IncomingEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	IsTyping       bool      `json:"is_typing,omitempty"`
}

// OutgoingEvent is what the server pushes to clients.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingEvent struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// TypingPayload is relayed to room members while a user is typing.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// PinPayload is broadcast when a message is pinned or unpinned.
type PinPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Pinned         bool   `json:"pinned"`
	PinnedBy       string `json:"pinned_by,omitempty"`
}
