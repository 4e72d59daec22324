package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorlink/internal/guard"
	"github.com/mentorlink/internal/model"
	"github.com/mentorlink/internal/storage/memory"
	"github.com/mentorlink/internal/ws"
)

type fakeStore struct {
	mu        sync.Mutex
	messages  []model.Message
	createErr error
	reads     map[string]map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{reads: make(map[string]map[string]time.Time)}
}

func (f *fakeStore) Create(ctx context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].ID == id {
			m := f.messages[i]
			return &m, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeStore) GetConversationMessages(ctx context.Context, convType model.ConversationType, convID string, limit, offset int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	// Newest first, like the real repository.
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if m.ConversationType == convType && m.ConversationID == convID {
			out = append(out, m)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CountConversation(ctx context.Context, convType model.ConversationType, convID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for i := range f.messages {
		if f.messages[i].ConversationType == convType && f.messages[i].ConversationID == convID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, messageID, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reads[messageID] == nil {
		f.reads[messageID] = make(map[string]time.Time)
	}
	if _, ok := f.reads[messageID][userID]; !ok {
		f.reads[messageID][userID] = at
	}
	return nil
}

func (f *fakeStore) SetPinned(ctx context.Context, id string, pinned bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].ID == id {
			f.messages[i].Pinned = pinned
			return nil
		}
	}
	return errors.New("not found")
}

type fakeUsers struct {
	users map[string]*model.User
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func (f *fakeUsers) GetMentees(ctx context.Context, mentorID string) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		if u.Role == model.RoleMentee && u.MentorID != nil && *u.MentorID == mentorID {
			out = append(out, *u)
		}
	}
	return out, nil
}

type fakeGroups struct {
	members map[string][]string // group id -> member ids
	groups  []model.Group
}

func (f *fakeGroups) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	for _, id := range f.members[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGroups) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	return f.members[groupID], nil
}

func (f *fakeGroups) GetUserGroups(ctx context.Context, userID string) ([]model.Group, error) {
	var out []model.Group
	for _, g := range f.groups {
		for _, id := range f.members[g.ID] {
			if id == userID {
				out = append(out, g)
			}
		}
	}
	return out, nil
}

type broadcastCall struct {
	room string
	ev   ws.OutgoingEvent
}

type fakeHub struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (f *fakeHub) BroadcastToRoom(room string, ev ws.OutgoingEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, broadcastCall{room: room, ev: ev})
}

func (f *fakeHub) UserOnline(userID string) bool { return true }

func (f *fakeHub) rooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.room)
	}
	return out
}

func newTestService(store *fakeStore, hub *fakeHub) *MessageService {
	mentorID := "mentor-1"
	users := &fakeUsers{users: map[string]*model.User{
		"mentor-1": {ID: "mentor-1", Username: "alice", Role: model.RoleMentor},
		"mentee-1": {ID: "mentee-1", Username: "bob", Role: model.RoleMentee, MentorID: &mentorID},
		"mentee-2": {ID: "mentee-2", Username: "carol", Role: model.RoleMentee, MentorID: &mentorID},
	}}
	groups := &fakeGroups{
		groups:  []model.Group{{ID: "group-1", Name: "Cohort A", MentorID: "mentor-1"}},
		members: map[string][]string{"group-1": {"mentor-1", "mentee-1", "mentee-2"}},
	}
	pipeline := guard.NewPipeline(memory.New(), false)
	return NewMessageService(pipeline, store, users, groups, hub, nil)
}

func TestSendPersistsAndBroadcasts(t *testing.T) {
	store := newFakeStore()
	hub := &fakeHub{}
	svc := newTestService(store, hub)

	m, rej, err := svc.Send(context.Background(), SendInput{
		ConversationType: model.ConversationGroup,
		ConversationID:   "group-1",
		SenderID:         "mentor-1",
		SenderRole:       model.RoleMentor,
		Content:          "Hello",
	})
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, m)

	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	require.Len(t, m.ReadBy, 1)
	assert.Equal(t, "mentor-1", m.ReadBy[0].UserID, "sender reads their own message at creation")
	require.NotNil(t, m.Sender)
	assert.Equal(t, "alice", m.Sender.Username)

	require.Len(t, store.messages, 1)
	assert.Equal(t, "Hello", store.messages[0].Content)

	require.Equal(t, []string{"group-1"}, hub.rooms())
	assert.Equal(t, ws.EventNewMessage, hub.calls[0].ev.Type)
}

func TestSendIndividualAlsoHitsPersonalRoom(t *testing.T) {
	store := newFakeStore()
	hub := &fakeHub{}
	svc := newTestService(store, hub)

	convID := model.DirectConversationID("mentor-1", "mentee-1")
	_, rej, err := svc.Send(context.Background(), SendInput{
		ConversationType: model.ConversationIndividual,
		ConversationID:   convID,
		SenderID:         "mentee-1",
		SenderRole:       model.RoleMentee,
		Content:          "hi there",
	})
	require.NoError(t, err)
	require.Nil(t, rej)

	assert.Equal(t, []string{convID, ws.PersonalRoom("mentee-1")}, hub.rooms())
}

func TestSendRejectionNeverReachesPersistence(t *testing.T) {
	store := newFakeStore()
	hub := &fakeHub{}
	svc := newTestService(store, hub)

	_, rej, err := svc.Send(context.Background(), SendInput{
		ConversationType: model.ConversationGroup,
		ConversationID:   "group-1",
		SenderID:         "mentee-1",
		SenderRole:       model.RoleMentee,
		Content:          strings.Repeat("a", 11),
	})
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, guard.CodeSpamDetected, rej.Code)
	assert.Empty(t, store.messages)
	assert.Empty(t, hub.rooms())
}

func TestSendPersistFailureNeverBroadcasts(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("connection lost")
	hub := &fakeHub{}
	svc := newTestService(store, hub)

	_, rej, err := svc.Send(context.Background(), SendInput{
		ConversationType: model.ConversationGroup,
		ConversationID:   "group-1",
		SenderID:         "mentor-1",
		SenderRole:       model.RoleMentor,
		Content:          "will not make it",
	})
	require.Error(t, err)
	require.Nil(t, rej)
	assert.Empty(t, hub.rooms())
}

func TestSendAuthorization(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeHub{})
	ctx := context.Background()

	// Not a member of the group.
	_, _, err := svc.Send(ctx, SendInput{
		ConversationType: model.ConversationGroup,
		ConversationID:   "group-other",
		SenderID:         "mentee-1",
		Content:          "hi",
	})
	assert.ErrorIs(t, err, ErrNotParticipant)

	// Not a participant of the direct thread.
	_, _, err = svc.Send(ctx, SendInput{
		ConversationType: model.ConversationIndividual,
		ConversationID:   model.DirectConversationID("mentor-1", "mentee-2"),
		SenderID:         "mentee-1",
		Content:          "hi",
	})
	assert.ErrorIs(t, err, ErrNotParticipant)

	// Unknown conversation kind.
	_, _, err = svc.Send(ctx, SendInput{
		ConversationType: "broadcast",
		ConversationID:   "x",
		SenderID:         "mentee-1",
		Content:          "hi",
	})
	assert.ErrorIs(t, err, ErrInvalidConversation)
}

func TestHistoryOldestFirst(t *testing.T) {
	store := newFakeStore()
	hub := &fakeHub{}
	svc := newTestService(store, hub)
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		_, rej, err := svc.Send(ctx, SendInput{
			ConversationType: model.ConversationGroup,
			ConversationID:   "group-1",
			SenderID:         "mentor-1",
			SenderRole:       model.RoleMentor,
			Content:          text,
		})
		require.NoError(t, err)
		require.Nil(t, rej)
	}

	messages, total, err := svc.History(ctx, model.ConversationGroup, "group-1", "mentee-1", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "third", messages[2].Content)
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt),
			"history must be in non-decreasing creation-time order")
	}
}

func TestHistoryRequiresMembership(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeHub{})
	_, _, err := svc.History(context.Background(), model.ConversationGroup, "group-1", "stranger", 1, 50)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestMarkReadIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeHub{})
	ctx := context.Background()

	m, _, err := svc.Send(ctx, SendInput{
		ConversationType: model.ConversationGroup,
		ConversationID:   "group-1",
		SenderID:         "mentor-1",
		SenderRole:       model.RoleMentor,
		Content:          "read me",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, m.ID, "mentee-1"))
	first := store.reads[m.ID]["mentee-1"]
	require.NoError(t, svc.MarkRead(ctx, m.ID, "mentee-1"))

	assert.Len(t, store.reads[m.ID], 1)
	assert.Equal(t, first, store.reads[m.ID]["mentee-1"], "repeated reads keep the first timestamp")
}

func TestSetPinnedBroadcasts(t *testing.T) {
	store := newFakeStore()
	hub := &fakeHub{}
	svc := newTestService(store, hub)
	ctx := context.Background()

	m, _, err := svc.Send(ctx, SendInput{
		ConversationType: model.ConversationGroup,
		ConversationID:   "group-1",
		SenderID:         "mentor-1",
		SenderRole:       model.RoleMentor,
		Content:          "pin me",
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetPinned(ctx, m.ID, "mentor-1", true))

	last := hub.calls[len(hub.calls)-1]
	assert.Equal(t, ws.EventMessagePinned, last.ev.Type)
	pin, ok := last.ev.Payload.(ws.PinPayload)
	require.True(t, ok)
	assert.True(t, pin.Pinned)
	assert.Equal(t, m.ID, pin.MessageID)

	got, err := store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Pinned)
}

func TestDirectory(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeHub{})
	ctx := context.Background()

	convs, err := svc.Directory(ctx, "mentor-1")
	require.NoError(t, err)
	// One group plus one direct thread per mentee.
	require.Len(t, convs, 3)
	assert.Equal(t, model.ConversationGroup, convs[0].Type)
	assert.Equal(t, "group-1", convs[0].ID)

	menteeConvs, err := svc.Directory(ctx, "mentee-1")
	require.NoError(t, err)
	require.Len(t, menteeConvs, 2)
	direct := menteeConvs[1]
	assert.Equal(t, model.ConversationIndividual, direct.Type)
	assert.Equal(t, model.DirectConversationID("mentor-1", "mentee-1"), direct.ID,
		"mentor and mentee derive the same thread id")
	require.NotNil(t, direct.Peer)
	assert.Equal(t, "alice", direct.Peer.Username)
}
