package service

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/model"
)

func TestCreateDirectReturnsExisting(t *testing.T) {
	existing := &model.Conversation{ID: "conv-1", ParticipantIDs: pq.StringArray{"a", "b"}}
	convs := &mockConversationRepo{
		findByPairKeyFunc: func(ctx context.Context, pairKey string) (*model.Conversation, error) {
			assert.Equal(t, model.DirectPairKey("a", "b"), pairKey)
			return existing, nil
		},
		createFunc: func(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
			t.Fatal("create must not be called when the conversation exists")
			return nil, nil
		},
	}
	users := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}
	svc := NewConversationService(convs, users)

	conv, err := svc.CreateDirect(context.Background(), "a", "b")

	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
}

func TestCreateDirectSymmetric(t *testing.T) {
	assert.Equal(t, model.DirectPairKey("a", "b"), model.DirectPairKey("b", "a"))
}

func TestCreateDirectCreatesWhenMissing(t *testing.T) {
	var created model.CreateConversationParams
	convs := &mockConversationRepo{
		findByPairKeyFunc: func(ctx context.Context, pairKey string) (*model.Conversation, error) {
			return nil, apperrors.NotFound("Conversation")
		},
		createFunc: func(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
			created = params
			return &model.Conversation{ID: "conv-new", ParticipantIDs: pq.StringArray(params.ParticipantIDs)}, nil
		},
	}
	users := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}
	svc := NewConversationService(convs, users)

	conv, err := svc.CreateDirect(context.Background(), "a", "b")

	require.NoError(t, err)
	assert.Equal(t, "conv-new", conv.ID)
	assert.ElementsMatch(t, []string{"a", "b"}, created.ParticipantIDs)
	require.NotNil(t, created.PairKey)
	assert.Equal(t, model.DirectPairKey("a", "b"), *created.PairKey)
	assert.False(t, created.IsGroup)
}

func TestCreateDirectLosingRaceRefetches(t *testing.T) {
	fetches := 0
	convs := &mockConversationRepo{
		findByPairKeyFunc: func(ctx context.Context, pairKey string) (*model.Conversation, error) {
			fetches++
			if fetches == 1 {
				return nil, apperrors.NotFound("Conversation")
			}
			return &model.Conversation{ID: "conv-winner"}, nil
		},
		createFunc: func(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
			return nil, &pq.Error{Code: "23505"}
		},
	}
	users := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}
	svc := NewConversationService(convs, users)

	conv, err := svc.CreateDirect(context.Background(), "a", "b")

	require.NoError(t, err)
	assert.Equal(t, "conv-winner", conv.ID, "both racers must converge on the same conversation")
	assert.Equal(t, 2, fetches)
}

func TestCreateDirectRejectsSelf(t *testing.T) {
	svc := NewConversationService(&mockConversationRepo{}, &mockUserRepo{})

	_, err := svc.CreateDirect(context.Background(), "a", "a")

	assert.Equal(t, apperrors.ErrCodeInvalidArgument, apperrors.GetCode(err))
}

func TestCreateDirectUnknownParticipant(t *testing.T) {
	users := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, apperrors.NotFound("User")
		},
	}
	svc := NewConversationService(&mockConversationRepo{}, users)

	_, err := svc.CreateDirect(context.Background(), "a", "ghost")

	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestCreateGroupIncludesCreator(t *testing.T) {
	var created model.CreateConversationParams
	convs := &mockConversationRepo{
		createFunc: func(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
			created = params
			return &model.Conversation{ID: "group-1"}, nil
		},
	}
	svc := NewConversationService(convs, &mockUserRepo{})

	b := "6f1e1f9a-0000-4000-8000-000000000001"
	c := "6f1e1f9a-0000-4000-8000-000000000002"
	_, err := svc.CreateGroup(context.Background(), "creator", "team", []string{b, c, b})

	require.NoError(t, err)
	assert.Equal(t, []string{"creator", b, c}, created.ParticipantIDs, "creator first, duplicates dropped")
	assert.True(t, created.IsGroup)
	require.NotNil(t, created.GroupName)
	assert.Equal(t, "team", *created.GroupName)
	assert.Nil(t, created.PairKey)
}

func TestCreateGroupRequiresName(t *testing.T) {
	svc := NewConversationService(&mockConversationRepo{}, &mockUserRepo{})

	_, err := svc.CreateGroup(context.Background(), "creator", "  ", []string{"6f1e1f9a-0000-4000-8000-000000000001"})

	assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
}

func TestGetForUserForbidsNonParticipant(t *testing.T) {
	convs := &mockConversationRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Conversation, error) {
			return &model.Conversation{ID: id, ParticipantIDs: pq.StringArray{"a", "b"}}, nil
		},
	}
	svc := NewConversationService(convs, &mockUserRepo{})

	_, err := svc.GetForUser(context.Background(), "conv-1", "intruder")
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))

	conv, err := svc.GetForUser(context.Background(), "conv-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
}
