package client

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/token"
)

// RefreshFunc exchanges a refresh token for a new pair, usually by
// calling the auth endpoint.
type RefreshFunc func(ctx context.Context, refreshToken string) (*token.Pair, error)

// RefreshCoordinator serializes token refreshes. However many callers
// hit an expired token at once, exactly one refresh request goes out;
// the rest wait and share its outcome. A failed refresh clears the
// session and reports through onLogout.
type RefreshCoordinator struct {
	session   *SessionStore
	refreshFn RefreshFunc
	onLogout  func(err error)

	group singleflight.Group

	mu         sync.Mutex
	refreshing bool
}

func NewRefreshCoordinator(session *SessionStore, refreshFn RefreshFunc, onLogout func(err error)) *RefreshCoordinator {
	if onLogout == nil {
		onLogout = func(error) {}
	}
	return &RefreshCoordinator{
		session:   session,
		refreshFn: refreshFn,
		onLogout:  onLogout,
	}
}

// Refreshing reports whether a refresh is in flight right now.
func (c *RefreshCoordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Refresh performs one coordinated refresh and returns the new pair.
// Concurrent callers are folded into a single request. The in-flight
// flag is cleared on every path out, success or failure.
func (c *RefreshCoordinator) Refresh(ctx context.Context) (*token.Pair, error) {
	result, err, _ := c.group.Do("refresh", func() (any, error) {
		c.mu.Lock()
		c.refreshing = true
		c.mu.Unlock()

		defer func() {
			c.mu.Lock()
			c.refreshing = false
			c.mu.Unlock()
		}()

		return c.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*token.Pair), nil
}

func (c *RefreshCoordinator) doRefresh(ctx context.Context) (*token.Pair, error) {
	refreshToken := c.session.RefreshToken()
	if refreshToken == "" {
		err := apperrors.Unauthenticated("No session to refresh")
		c.fail(err)
		return nil, err
	}

	pair, err := c.refreshFn(ctx, refreshToken)
	if err != nil {
		// Transient failures leave the session alone so a later attempt
		// can still succeed; anything else ends the session.
		if apperrors.IsRetryable(err) {
			log.Warn().Err(err).Msg("token refresh failed, will retry")
			return nil, err
		}
		c.fail(err)
		return nil, err
	}

	c.session.SetTokens(*pair)
	return pair, nil
}

func (c *RefreshCoordinator) fail(err error) {
	log.Warn().Err(err).Msg("token refresh failed, ending session")
	c.session.Clear()
	c.onLogout(err)
}
