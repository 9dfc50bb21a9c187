package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/lumeochat/messenger-go/internal/model"
)

type MessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.Message, error)
	FindByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	CountByConversationID(ctx context.Context, conversationID string) (int, error)
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
	Tombstone(ctx context.Context, id string) error
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `SELECT * FROM messages WHERE id = $1`, id)
	return HandleNotFound(&msg, err, "Message")
}

func (r *messageRepo) FindByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	return msgs, err
}

func (r *messageRepo) CountByConversationID(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = $1
	`, conversationID)
	return count, err
}

// Create persists a message. created_at and the id are assigned by the
// database so append order within a conversation follows insert order.
// The sender is always in read_by from the start.
func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (conversation_id, sender_id, content, type, read_by)
		VALUES ($1, $2, $3, $4, ARRAY[$2])
		RETURNING *
	`, params.ConversationID, params.SenderID, params.Content, params.Type)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead adds readerID to read_by on every message in the conversation
// that the reader has not read and did not send. Idempotent: already-marked
// rows are not touched.
func (r *messageRepo) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE messages SET read_by = array_append(read_by, $2)
		WHERE conversation_id = $1
		AND sender_id <> $2
		AND NOT (read_by @> ARRAY[$2])
	`, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Tombstone clears the content and sets the deleted flag; the row itself
// is never removed.
func (r *messageRepo) Tombstone(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = '', deleted = TRUE WHERE id = $1
	`, id)
	return err
}
