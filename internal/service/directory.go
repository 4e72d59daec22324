package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mentorlink/internal/logger"
	"github.com/mentorlink/internal/model"
)

// Conversation is one addressable thread in a user's directory: a group the
// user belongs to, or a one-on-one thread derived from the mentor/mentee
// assignment.
type Conversation struct {
	Type model.ConversationType `json:"type"`
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Peer *model.UserPublic      `json:"peer,omitempty"`
}

// Directory derives the caller's conversation list. No conversation records
// are stored; both sides of a direct thread converge on the same derived id.
func (s *MessageService) Directory(ctx context.Context, userID string) ([]Conversation, error) {
	defer logger.DeferLogDuration("service.Directory", time.Now())()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	userGroups, err := s.groups.GetUserGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve groups: %w", err)
	}

	conversations := make([]Conversation, 0, len(userGroups)+4)
	for _, g := range userGroups {
		conversations = append(conversations, Conversation{
			Type: model.ConversationGroup,
			ID:   g.ID,
			Name: g.Name,
		})
	}

	switch user.Role {
	case model.RoleMentee:
		if user.MentorID == nil {
			break
		}
		mentor, err := s.users.GetByID(ctx, *user.MentorID)
		if err != nil {
			logger.Errorf("directory: resolve mentor %s: %v", *user.MentorID, err)
			break
		}
		pub := mentor.ToPublic()
		conversations = append(conversations, Conversation{
			Type: model.ConversationIndividual,
			ID:   model.DirectConversationID(user.ID, mentor.ID),
			Name: mentor.Username,
			Peer: &pub,
		})
	case model.RoleMentor:
		mentees, err := s.users.GetMentees(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve mentees: %w", err)
		}
		for i := range mentees {
			pub := mentees[i].ToPublic()
			conversations = append(conversations, Conversation{
				Type: model.ConversationIndividual,
				ID:   model.DirectConversationID(user.ID, mentees[i].ID),
				Name: mentees[i].Username,
				Peer: &pub,
			})
		}
	}

	return conversations, nil
}
