package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lumeochat/messenger-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.User, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	UpdateStatus(ctx context.Context, id string, status model.UserStatus) error
	TouchActivity(ctx context.Context, id string) error
	MarkStaleOffline(ctx context.Context, threshold time.Time, onlineIDs []string) (int64, error)
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	return HandleNotFound(&user, err, "User")
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = $1`, email)
	return HandleNotFound(&user, err, "User")
}

func (r *userRepo) FindByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []model.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT * FROM users WHERE id = ANY($1)
	`, pq.Array(ids))
	return users, err
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (username, email, password_hash, roles)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.Username, params.Email, params.PasswordHash, pq.Array(params.Roles))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) UpdateStatus(ctx context.Context, id string, status model.UserStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			status = $2,
			last_active_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`, id, status)
	return err
}

func (r *userRepo) TouchActivity(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_active_at = NOW() WHERE id = $1
	`, id)
	return err
}

// MarkStaleOffline flips users to offline whose last activity is older than
// threshold and who hold no live connection on any instance. Recovers
// presence after a crash that skipped disconnect handling.
func (r *userRepo) MarkStaleOffline(ctx context.Context, threshold time.Time, onlineIDs []string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET status = 'offline', updated_at = NOW()
		WHERE status <> 'offline'
		AND last_active_at < $1
		AND NOT (id = ANY($2))
	`, threshold, pq.Array(onlineIDs))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
