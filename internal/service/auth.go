package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lumeochat/messenger-go/internal/audit"
	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/repository"
	"github.com/lumeochat/messenger-go/internal/token"
	"github.com/lumeochat/messenger-go/internal/util"
)

type AuthService struct {
	users     repository.UserRepository
	authority *token.Authority
}

func NewAuthService(users repository.UserRepository, authority *token.Authority) *AuthService {
	return &AuthService{users: users, authority: authority}
}

type RegisterParams struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResult struct {
	User   model.PublicUser `json:"user"`
	Tokens token.Pair       `json:"tokens"`
}

func (s *AuthService) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	if util.IsBlank(params.Username) {
		return nil, apperrors.MissingRequired("username")
	}
	if !util.IsValidEmail(params.Email) {
		return nil, apperrors.InvalidArgument("email", "must be a valid email address")
	}
	if len(params.Password) < 8 {
		return nil, apperrors.InvalidArgument("password", "must be at least 8 characters")
	}

	if _, err := s.users.FindByEmail(ctx, params.Email); err == nil {
		return nil, apperrors.AlreadyExists("Account with this email")
	} else if apperrors.GetCode(err) != apperrors.ErrCodeNotFound {
		return nil, err
	}

	hash, err := util.HashPassword(params.Password)
	if err != nil {
		return nil, apperrors.Internal("Failed to hash password")
	}

	user, err := s.users.Create(ctx, model.CreateUserParams{
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: hash,
		Roles:        []string{"user"},
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.AlreadyExists("Account with this email")
		}
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventRegister, UserID: user.ID})

	return s.issueFor(ctx, user)
}

// Login verifies credentials and issues a token pair. Wrong email and
// wrong password return the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeNotFound {
			audit.Log(ctx, audit.Event{Type: audit.EventLoginFailure, Details: map[string]interface{}{"reason": "unknown email"}})
			return nil, apperrors.Unauthenticated("Invalid credentials")
		}
		return nil, err
	}

	if !util.CheckPasswordHash(password, user.PasswordHash) {
		audit.Log(ctx, audit.Event{Type: audit.EventLoginFailure, UserID: user.ID, Details: map[string]interface{}{"reason": "bad password"}})
		return nil, apperrors.Unauthenticated("Invalid credentials")
	}

	audit.Log(ctx, audit.Event{Type: audit.EventLoginSuccess, UserID: user.ID})

	if err := s.users.UpdateStatus(ctx, user.ID, model.UserStatusOnline); err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("failed to mark user online")
	}

	return s.issueFor(ctx, user)
}

func (s *AuthService) issueFor(ctx context.Context, user *model.User) (*AuthResult, error) {
	pair, err := s.authority.Issue(user.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to issue tokens")
	}

	if err := s.users.TouchActivity(ctx, user.ID); err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("failed to touch user activity")
	}

	return &AuthResult{User: user.Public(), Tokens: *pair}, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. The
// refresh token comes back unchanged; see token.Authority.Rotate.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	pair, err := s.authority.Rotate(refreshToken)
	if err != nil {
		return nil, err
	}

	subjectID, _ := s.authority.ValidateRefresh(refreshToken)
	audit.Log(ctx, audit.Event{Type: audit.EventTokenRefresh, UserID: subjectID})

	if err := s.users.TouchActivity(ctx, subjectID); err != nil {
		log.Error().Err(err).Str("userId", subjectID).Msg("failed to touch user activity")
	}

	return pair, nil
}

// Logout marks the user offline. Tokens are not revoked; the client is
// expected to discard them.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	audit.Log(ctx, audit.Event{Type: audit.EventLogout, UserID: userID})
	return s.users.UpdateStatus(ctx, userID, model.UserStatusOffline)
}
