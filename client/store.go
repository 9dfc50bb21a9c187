package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/token"
)

const (
	sessionKeyTokens = "auth.tokens"
	sessionKeyUser   = "auth.user"
)

// SessionStore holds the authenticated session: the current token pair
// and user. State lives in memory for fast reads and is mirrored into
// the backing Store so a restarted client resumes without a login.
type SessionStore struct {
	backing Store

	mu     sync.RWMutex
	tokens *token.Pair
	user   *model.PublicUser
}

func NewSessionStore(backing Store) *SessionStore {
	s := &SessionStore{backing: backing}
	s.restore()
	return s
}

func (s *SessionStore) restore() {
	if data, ok := s.backing.Get(sessionKeyTokens); ok {
		var pair token.Pair
		if json.Unmarshal(data, &pair) == nil {
			s.tokens = &pair
		}
	}
	if data, ok := s.backing.Get(sessionKeyUser); ok {
		var user model.PublicUser
		if json.Unmarshal(data, &user) == nil {
			s.user = &user
		}
	}
}

// SetSession replaces the stored tokens and user after login or register.
func (s *SessionStore) SetSession(pair token.Pair, user model.PublicUser) {
	s.mu.Lock()
	s.tokens = &pair
	s.user = &user
	s.mu.Unlock()

	s.persistTokens(pair)
	if data, err := json.Marshal(user); err == nil {
		s.backing.Set(sessionKeyUser, data, 0)
	}
}

// SetTokens replaces only the token pair, keeping the user. Used after
// a refresh.
func (s *SessionStore) SetTokens(pair token.Pair) {
	s.mu.Lock()
	s.tokens = &pair
	s.mu.Unlock()

	s.persistTokens(pair)
}

func (s *SessionStore) persistTokens(pair token.Pair) {
	if data, err := json.Marshal(pair); err == nil {
		s.backing.Set(sessionKeyTokens, data, 0)
	}
}

func (s *SessionStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return ""
	}
	return s.tokens.AccessToken
}

func (s *SessionStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return ""
	}
	return s.tokens.RefreshToken
}

func (s *SessionStore) User() *model.PublicUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *SessionStore) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens != nil && s.tokens.AccessToken != ""
}

// Clear wipes the session, memory and backing store both. Called on
// logout and on unrecoverable auth failure.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	s.tokens = nil
	s.user = nil
	s.mu.Unlock()

	s.backing.Delete(sessionKeyTokens)
	s.backing.Delete(sessionKeyUser)
}

// TokenExpiry reports how long the current access token is valid for,
// ignoring ttl elapsed since issue. Used only for coarse scheduling.
func (s *SessionStore) TokenExpiry() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return 0
	}
	return time.Duration(s.tokens.ExpiresIn) * time.Second
}
