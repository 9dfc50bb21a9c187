package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lumeochat/messenger-go/internal/model"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByPairKey(ctx context.Context, pairKey string) (*model.Conversation, error)
	FindByUserID(ctx context.Context, userID string) ([]model.Conversation, error)
	IDsByUserID(ctx context.Context, userID string) ([]string, error)
	Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error)
	UpdateLastMessage(ctx context.Context, id, messageID string) error
}

type conversationRepo struct {
	db *sqlx.DB
}

func NewConversationRepository(db *sqlx.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT * FROM conversations WHERE id = $1`, id)
	return HandleNotFound(&conv, err, "Conversation")
}

func (r *conversationRepo) FindByPairKey(ctx context.Context, pairKey string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT * FROM conversations WHERE pair_key = $1 AND is_group = FALSE
	`, pairKey)
	return HandleNotFound(&conv, err, "Conversation")
}

func (r *conversationRepo) FindByUserID(ctx context.Context, userID string) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.SelectContext(ctx, &convs, `
		SELECT * FROM conversations
		WHERE $1 = ANY(participant_ids)
		ORDER BY updated_at DESC
	`, userID)
	return convs, err
}

func (r *conversationRepo) IDsByUserID(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM conversations WHERE $1 = ANY(participant_ids)
	`, userID)
	return ids, err
}

// Create inserts a conversation. For one-to-one conversations pair_key
// carries the sorted participant pair and a partial unique index rejects
// a duplicate; callers should treat a unique violation as "lost the race"
// and re-fetch by pair key.
func (r *conversationRepo) Create(ctx context.Context, params model.CreateConversationParams) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.GetContext(ctx, &conv, `
		INSERT INTO conversations (participant_ids, is_group, group_name, pair_key)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, pq.Array(params.ParticipantIDs), params.IsGroup, params.GroupName, params.PairKey)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) UpdateLastMessage(ctx context.Context, id, messageID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			last_message_id = $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, messageID)
	return err
}
