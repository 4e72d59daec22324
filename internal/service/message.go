// Package service implements the message write/read path: every message
// becomes durable and visible to other participants only through here.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mentorlink/internal/guard"
	"github.com/mentorlink/internal/logger"
	"github.com/mentorlink/internal/model"
	"github.com/mentorlink/internal/ws"
)

var (
	ErrInvalidConversation = errors.New("invalid conversation")
	ErrNotParticipant      = errors.New("not a participant of this conversation")
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessageStore is the persistence surface the service needs.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	GetConversationMessages(ctx context.Context, convType model.ConversationType, convID string, limit, offset int) ([]model.Message, error)
	CountConversation(ctx context.Context, convType model.ConversationType, convID string) (int, error)
	MarkRead(ctx context.Context, messageID, userID string, at time.Time) error
	SetPinned(ctx context.Context, id string, pinned bool) error
}

// UserDirectory resolves user records (auth collaborator surface).
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetMentees(ctx context.Context, mentorID string) ([]model.User, error)
}

// GroupDirectory resolves group membership (group collaborator surface).
type GroupDirectory interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	GetMemberIDs(ctx context.Context, groupID string) ([]string, error)
	GetUserGroups(ctx context.Context, userID string) ([]model.Group, error)
}

// Broadcaster is the realtime fan-out transport (the ws hub).
type Broadcaster interface {
	BroadcastToRoom(room string, ev ws.OutgoingEvent)
	UserOnline(userID string) bool
}

// Notifier sends push notifications. nil disables pushes.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

type MessageService struct {
	pipeline *guard.Pipeline
	store    MessageStore
	users    UserDirectory
	groups   GroupDirectory
	hub      Broadcaster
	notifier Notifier
}

func NewMessageService(pipeline *guard.Pipeline, store MessageStore, users UserDirectory, groups GroupDirectory, hub Broadcaster, notifier Notifier) *MessageService {
	return &MessageService{
		pipeline: pipeline,
		store:    store,
		users:    users,
		groups:   groups,
		hub:      hub,
		notifier: notifier,
	}
}

// SendInput describes one message-write attempt.
type SendInput struct {
	ConversationType model.ConversationType
	ConversationID   string
	SenderID         string
	SenderRole       model.Role
	Content          string
	Attachments      []model.Attachment
	// System marks operational messages that bypass abuse control.
	System bool
}

// Send runs the abuse pipeline, persists the message and fans it out.
// On rejection the *guard.Rejection is non-nil; a failed persist never
// triggers a broadcast.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*model.Message, *guard.Rejection, error) {
	defer logger.DeferLogDuration("service.Send", time.Now())()

	if err := s.authorize(ctx, in.ConversationType, in.ConversationID, in.SenderID); err != nil {
		return nil, nil, err
	}

	if rej := s.pipeline.Check(ctx, guard.Request{
		Identity: in.SenderID,
		Content:  in.Content,
		System:   in.System,
	}); rej != nil {
		return nil, rej, nil
	}

	now := time.Now().UTC()
	m := &model.Message{
		ID:               uuid.New().String(),
		ConversationType: in.ConversationType,
		ConversationID:   in.ConversationID,
		SenderID:         in.SenderID,
		SenderRole:       in.SenderRole,
		Content:          strings.TrimSpace(in.Content),
		Attachments:      in.Attachments,
		CreatedAt:        now,
	}

	if err := s.store.Create(ctx, m); err != nil {
		return nil, nil, fmt.Errorf("persist message: %w", err)
	}
	// The repository seeded the sender's receipt; mirror it on the returned value.
	m.ReadBy = []model.ReadReceipt{{UserID: in.SenderID, ReadAt: now}}

	if sender, err := s.users.GetByID(ctx, in.SenderID); err != nil {
		logger.Errorf("send: resolve sender %s: %v", in.SenderID, err)
	} else {
		pub := sender.ToPublic()
		m.Sender = &pub
	}

	ev := ws.OutgoingEvent{Type: ws.EventNewMessage, Payload: m}
	s.hub.BroadcastToRoom(in.ConversationID, ev)
	if in.ConversationType == model.ConversationIndividual {
		// The sender's other sessions see the message even if they never
		// joined the conversation room.
		s.hub.BroadcastToRoom(ws.PersonalRoom(in.SenderID), ev)
	}

	s.notifyRecipients(m)
	return m, nil, nil
}

// History returns one page of a conversation, oldest first, plus the total
// message count for pagination. Stored newest first internally and reversed
// for delivery.
func (s *MessageService) History(ctx context.Context, convType model.ConversationType, convID, callerID string, page, limit int) ([]model.Message, int, error) {
	defer logger.DeferLogDuration("service.History", time.Now())()

	if err := s.authorize(ctx, convType, convID, callerID); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	messages, err := s.store.GetConversationMessages(ctx, convType, convID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountConversation(ctx, convType, convID)
	if err != nil {
		return nil, 0, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, total, nil
}

// MarkRead appends the reader to the message's receipt list. Idempotent.
func (s *MessageService) MarkRead(ctx context.Context, messageID, readerID string) error {
	defer logger.DeferLogDuration("service.MarkRead", time.Now())()
	return s.store.MarkRead(ctx, messageID, readerID, time.Now().UTC())
}

// SetPinned flips a message's pinned flag and notifies the conversation room.
func (s *MessageService) SetPinned(ctx context.Context, messageID, callerID string, pinned bool) error {
	defer logger.DeferLogDuration("service.SetPinned", time.Now())()

	m, err := s.store.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, m.ConversationType, m.ConversationID, callerID); err != nil {
		return err
	}
	if err := s.store.SetPinned(ctx, messageID, pinned); err != nil {
		return err
	}
	s.hub.BroadcastToRoom(m.ConversationID, ws.OutgoingEvent{
		Type: ws.EventMessagePinned,
		Payload: ws.PinPayload{
			MessageID:      messageID,
			ConversationID: m.ConversationID,
			Pinned:         pinned,
			PinnedBy:       callerID,
		},
	})
	return nil
}

// authorize verifies the caller belongs to the conversation: participant of
// the direct thread, or member of the group.
func (s *MessageService) authorize(ctx context.Context, convType model.ConversationType, convID, userID string) error {
	switch convType {
	case model.ConversationIndividual:
		a, b, ok := model.DirectConversationMembers(convID)
		if !ok {
			return ErrInvalidConversation
		}
		if a != userID && b != userID {
			return ErrNotParticipant
		}
		return nil
	case model.ConversationGroup:
		if convID == "" {
			return ErrInvalidConversation
		}
		isMember, err := s.groups.IsMember(ctx, convID, userID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if !isMember {
			return ErrNotParticipant
		}
		return nil
	default:
		return ErrInvalidConversation
	}
}

// notifyRecipients pushes a web notification to participants without an
// active connection. Best effort, off the request path.
func (s *MessageService) notifyRecipients(m *model.Message) {
	if s.notifier == nil {
		return
	}
	recipients, err := s.recipientIDs(m)
	if err != nil {
		logger.Errorf("notify: resolve recipients for %s: %v", m.ConversationID, err)
		return
	}

	title := "New message"
	if m.Sender != nil && m.Sender.Username != "" {
		title = m.Sender.Username
	}
	body := m.Content
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	data := map[string]string{"conversation_id": m.ConversationID, "message_id": m.ID}

	for _, uid := range recipients {
		if uid == m.SenderID || s.hub.UserOnline(uid) {
			continue
		}
		uid := uid
		go s.notifier.Notify(context.Background(), uid, title, body, data)
	}
}

func (s *MessageService) recipientIDs(m *model.Message) ([]string, error) {
	if m.ConversationType == model.ConversationIndividual {
		a, b, ok := model.DirectConversationMembers(m.ConversationID)
		if !ok {
			return nil, ErrInvalidConversation
		}
		return []string{a, b}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.groups.GetMemberIDs(ctx, m.ConversationID)
}
