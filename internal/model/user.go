package model

import (
	"time"

	"github.com/lib/pq"
)

type User struct {
	ID           string         `db:"id" json:"id"`
	Username     string         `db:"username" json:"username"`
	Email        string         `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Avatar       *string        `db:"avatar" json:"avatar,omitempty"`
	Roles        pq.StringArray `db:"roles" json:"roles"`
	Status       UserStatus     `db:"status" json:"status"`
	LastActiveAt time.Time      `db:"last_active_at" json:"lastActiveAt"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	Roles        []string
}

// PublicUser is the subset of User safe to embed in broadcasts and
// message payloads.
type PublicUser struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Avatar   *string    `json:"avatar,omitempty"`
	Status   UserStatus `json:"status"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
		Status:   u.Status,
	}
}
