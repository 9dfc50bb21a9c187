package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lumeochat/messenger-go/internal/model"
)

type DeviceRepository interface {
	Upsert(ctx context.Context, params model.UpsertDeviceParams) (*model.Device, error)
	DeleteByToken(ctx context.Context, userID, pushToken string) error
	TokensByUserIDs(ctx context.Context, userIDs []string) ([]string, error)
	DeleteStale(ctx context.Context, threshold time.Time) (int64, error)
}

type deviceRepo struct {
	db *sqlx.DB
}

func NewDeviceRepository(db *sqlx.DB) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) Upsert(ctx context.Context, params model.UpsertDeviceParams) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		INSERT INTO devices (user_id, push_token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (push_token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			last_seen_at = NOW()
		RETURNING *
	`, params.UserID, params.PushToken, params.Platform)
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) DeleteByToken(ctx context.Context, userID, pushToken string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM devices WHERE user_id = $1 AND push_token = $2
	`, userID, pushToken)
	return err
}

func (r *deviceRepo) TokensByUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var tokens []string
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT push_token FROM devices WHERE user_id = ANY($1)
	`, pq.Array(userIDs))
	return tokens, err
}

func (r *deviceRepo) DeleteStale(ctx context.Context, threshold time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM devices WHERE last_seen_at < $1
	`, threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
