package service

import (
	"context"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/repository"
	"github.com/lumeochat/messenger-go/internal/util"
)

type ConversationService struct {
	conversations repository.ConversationRepository
	users         repository.UserRepository
}

func NewConversationService(conversations repository.ConversationRepository, users repository.UserRepository) *ConversationService {
	return &ConversationService{conversations: conversations, users: users}
}

// CreateDirect finds or creates the one-to-one conversation between
// creatorID and otherID. Two callers racing to create the same pair both
// end up with the same conversation: the loser of the insert race gets a
// unique violation on the pair key and re-fetches.
func (s *ConversationService) CreateDirect(ctx context.Context, creatorID, otherID string) (*model.Conversation, error) {
	if otherID == "" || otherID == creatorID {
		return nil, apperrors.InvalidArgument("participantId", "must name another user")
	}
	if _, err := s.users.FindByID(ctx, otherID); err != nil {
		return nil, err
	}

	pairKey := model.DirectPairKey(creatorID, otherID)
	existing, err := s.conversations.FindByPairKey(ctx, pairKey)
	if err == nil {
		return existing, nil
	}
	if apperrors.GetCode(err) != apperrors.ErrCodeNotFound {
		return nil, err
	}

	conv, err := s.conversations.Create(ctx, model.CreateConversationParams{
		ParticipantIDs: []string{creatorID, otherID},
		PairKey:        &pairKey,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return s.conversations.FindByPairKey(ctx, pairKey)
		}
		return nil, err
	}
	return conv, nil
}

// CreateGroup creates a group conversation. The creator is always a
// participant even when omitted from the request.
func (s *ConversationService) CreateGroup(ctx context.Context, creatorID, name string, participantIDs []string) (*model.Conversation, error) {
	if util.IsBlank(name) {
		return nil, apperrors.MissingRequired("groupName")
	}

	seen := map[string]bool{creatorID: true}
	members := []string{creatorID}
	for _, id := range participantIDs {
		if seen[id] {
			continue
		}
		if !util.IsValidUUID(id) {
			return nil, apperrors.InvalidArgument("participantIds", "must be valid user ids")
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, apperrors.InvalidArgument("participantIds", "a group needs at least one other participant")
	}

	return s.conversations.Create(ctx, model.CreateConversationParams{
		ParticipantIDs: members,
		IsGroup:        true,
		GroupName:      &name,
	})
}

func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.conversations.FindByUserID(ctx, userID)
}

// GetForUser loads a conversation and checks membership. Non-participants
// get FORBIDDEN, not NOT_FOUND: the conversation's existence is not hidden.
func (s *ConversationService) GetForUser(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.Forbidden("Not a participant of this conversation")
	}
	return conv, nil
}

// MembershipIDs returns the ids of every conversation userID belongs to.
// The gateway joins all of them at handshake.
func (s *ConversationService) MembershipIDs(ctx context.Context, userID string) ([]string, error) {
	return s.conversations.IDsByUserID(ctx, userID)
}
