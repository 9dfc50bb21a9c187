package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/repository"
)

// PresenceService tracks how many live connections each user holds and
// broadcasts status changes only on the edges: first connection up and
// last connection down. A user with three devices who closes one stays
// online and nothing is announced.
type PresenceService struct {
	users       repository.UserRepository
	broadcaster Broadcaster

	mu     sync.Mutex
	counts map[string]int
}

func NewPresenceService(users repository.UserRepository, broadcaster Broadcaster) *PresenceService {
	return &PresenceService{
		users:       users,
		broadcaster: broadcaster,
		counts:      make(map[string]int),
	}
}

type statusPayload struct {
	UserID string           `json:"userId"`
	Status model.UserStatus `json:"status"`
}

// HandleConnect records a new connection for userID. On the 0 to 1
// transition the user is marked online in the store and the change is
// announced to everyone else.
func (s *PresenceService) HandleConnect(ctx context.Context, userID string) {
	s.mu.Lock()
	s.counts[userID]++
	first := s.counts[userID] == 1
	s.mu.Unlock()

	if !first {
		return
	}
	s.announce(ctx, userID, model.UserStatusOnline)
}

// HandleDisconnect records a closed connection. On the 1 to 0 transition
// the user is marked offline and the change is announced.
func (s *PresenceService) HandleDisconnect(ctx context.Context, userID string) {
	s.mu.Lock()
	s.counts[userID]--
	last := s.counts[userID] <= 0
	if last {
		delete(s.counts, userID)
	}
	s.mu.Unlock()

	if !last {
		return
	}
	s.announce(ctx, userID, model.UserStatusOffline)
}

// SetStatus applies a user-chosen status (away, back to online). The
// connection count is untouched; disconnect semantics stay edge-based.
func (s *PresenceService) SetStatus(ctx context.Context, userID string, status model.UserStatus) error {
	switch status {
	case model.UserStatusOnline, model.UserStatusOffline, model.UserStatusAway:
	default:
		return apperrors.InvalidArgument("status", "must be online, offline or away")
	}
	s.announce(ctx, userID, status)
	return nil
}

func (s *PresenceService) announce(ctx context.Context, userID string, status model.UserStatus) {
	if err := s.users.UpdateStatus(ctx, userID, status); err != nil {
		log.Error().Err(err).
			Str("userId", userID).
			Str("status", string(status)).
			Msg("failed to persist presence change")
	}

	err := s.broadcaster.BroadcastAll(ctx, eventUserStatus, statusPayload{
		UserID: userID,
		Status: status,
	}, userID)
	if err != nil {
		log.Error().Err(err).
			Str("userId", userID).
			Msg("failed to broadcast presence change")
	}
}

// IsOnline reports whether userID holds at least one live connection on
// this instance.
func (s *PresenceService) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[userID] > 0
}

// OnlineUserIDs returns every user with a live connection on this
// instance. The maintenance job uses it to avoid flipping connected
// users offline.
func (s *PresenceService) OnlineUserIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.counts))
	for id := range s.counts {
		ids = append(ids, id)
	}
	return ids
}
