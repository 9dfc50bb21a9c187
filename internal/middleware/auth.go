package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lumeochat/messenger-go/internal/audit"
	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/httputil"
	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/repository"
	"github.com/lumeochat/messenger-go/internal/token"
)

type contextKey string

const UserContextKey contextKey = "user"

func GetUser(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserContextKey).(*model.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware validates the bearer access token on every request it
// guards and loads the authenticated user into the request context.
// Expired tokens get TOKEN_EXPIRED so clients know to refresh rather
// than re-login.
type AuthMiddleware struct {
	authority *token.Authority
	users     repository.UserRepository
}

func NewAuthMiddleware(authority *token.Authority, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{authority: authority, users: users}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r)
		if tokenString == "" {
			httputil.WriteError(w, apperrors.Unauthenticated("Missing access token"))
			return
		}

		userID, err := m.authority.ValidateAccess(tokenString)
		if err != nil {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": err.Error()},
			})
			httputil.WriteError(w, err)
			return
		}

		user, err := m.users.FindByID(r.Context(), userID)
		if err != nil {
			if apperrors.GetCode(err) == apperrors.ErrCodeNotFound {
				httputil.WriteError(w, apperrors.Unauthenticated("Account no longer exists"))
				return
			}
			log.Error().Err(err).Msg("auth middleware: failed to load user")
			httputil.WriteError(w, apperrors.Database(err))
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
