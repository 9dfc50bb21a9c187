package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/token"
)

func newGatewayForHandshake(authority *token.Authority) (*Gateway, *Hub) {
	hub := NewHub(nil)
	return NewGateway(hub, authority, nil, nil, nil, nil, ""), hub
}

func handshakeAuthority(accessTTL time.Duration) *token.Authority {
	return token.NewAuthority("access-secret-for-tests", "refresh-secret-for-tests", accessTTL, 24*time.Hour)
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	g, hub := newGatewayForHandshake(handshakeAuthority(15 * time.Minute))
	defer hub.Close()

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, hub.TotalConnections(), "no connection is registered before auth")
}

func TestHandshakeRejectsExpiredToken(t *testing.T) {
	expired := handshakeAuthority(-time.Minute)
	pair, err := expired.Issue("user-1")
	require.NoError(t, err)

	g, hub := newGatewayForHandshake(handshakeAuthority(15 * time.Minute))
	defer hub.Close()

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+pair.AccessToken, nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeTokenExpired),
		"expiry is signalled distinctly so the client refreshes and reconnects")
	assert.Equal(t, 0, hub.TotalConnections())
}

func TestHandshakeRejectsRefreshToken(t *testing.T) {
	authority := handshakeAuthority(15 * time.Minute)
	pair, err := authority.Issue("user-1")
	require.NoError(t, err)

	g, hub := newGatewayForHandshake(authority)
	defer hub.Close()

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+pair.RefreshToken, nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeTokenMalformed))
}

func TestBearerTokenSources(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", bearerToken(req))

	req = httptest.NewRequest(http.MethodGet, "/ws?token=query-token", nil)
	assert.Equal(t, "query-token", bearerToken(req))

	// The header wins when both are present.
	req = httptest.NewRequest(http.MethodGet, "/ws?token=query-token", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", bearerToken(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Empty(t, bearerToken(req))
}
