package model

import "time"

type ConversationType string

const (
	ConversationGroup      ConversationType = "group"
	ConversationIndividual ConversationType = "individual"
)

// MaxContentLength is the hard cap on message content, enforced before
// anything reaches persistence.
const MaxContentLength = 1000

type Attachment struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

type ReadReceipt struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

type Message struct {
	ID               string           `json:"id"`
	ConversationType ConversationType `json:"conversation_type"`
	ConversationID   string           `json:"conversation_id"`
	SenderID         string           `json:"sender_id"`
	SenderRole       Role             `json:"sender_role"`
	Content          string           `json:"content"`
	Attachments      []Attachment     `json:"attachments,omitempty"`
	Pinned           bool             `json:"pinned"`
	ReadBy           []ReadReceipt    `json:"read_by,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	Sender           *UserPublic      `json:"sender,omitempty"`
}
