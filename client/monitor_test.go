package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/token"
)

func noopCoordinator(session *SessionStore) *RefreshCoordinator {
	return NewRefreshCoordinator(session, func(ctx context.Context, refreshToken string) (*token.Pair, error) {
		return &token.Pair{AccessToken: "fresh", RefreshToken: refreshToken, ExpiresIn: 900}, nil
	}, nil)
}

func TestMonitorHardTimeoutExpiresSession(t *testing.T) {
	session := seededSession()
	m := NewActivityMonitor(session, noopCoordinator(session), MonitorConfig{
		SessionTimeout: 100 * time.Millisecond,
		WarningLead:    10 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	})

	var expired atomic.Bool
	m.cfg.OnExpired = func() { expired.Store(true) }

	m.Start()
	defer m.Stop()

	require.Eventually(t, expired.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateExpired, m.State())
	assert.False(t, session.Authenticated(), "expiry clears the session")
}

func TestMonitorActivityDoesNotExtendHardTimeout(t *testing.T) {
	session := seededSession()
	m := NewActivityMonitor(session, noopCoordinator(session), MonitorConfig{
		SessionTimeout: 80 * time.Millisecond,
		WarningLead:    10 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})

	var expired atomic.Bool
	m.cfg.OnExpired = func() { expired.Store(true) }

	m.Start()
	defer m.Stop()

	// Stay busy the whole time; the hard clock must fire anyway.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) && !expired.Load() {
		m.Touch()
		time.Sleep(5 * time.Millisecond)
	}

	assert.True(t, expired.Load(), "touching never extends the hard session clock")
}

func TestMonitorWarningFiresBeforeExpiry(t *testing.T) {
	session := seededSession()
	m := NewActivityMonitor(session, noopCoordinator(session), MonitorConfig{
		SessionTimeout: 200 * time.Millisecond,
		WarningLead:    150 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	})

	var warnedAt atomic.Int64
	var expiredAt atomic.Int64
	start := time.Now()
	m.cfg.OnWarning = func(remaining time.Duration) {
		warnedAt.Store(int64(time.Since(start)))
		assert.Positive(t, remaining)
	}
	m.cfg.OnExpired = func() { expiredAt.Store(int64(time.Since(start))) }

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return expiredAt.Load() > 0 }, time.Second, 5*time.Millisecond)
	require.Positive(t, warnedAt.Load(), "warning precedes expiry")
	assert.Less(t, warnedAt.Load(), expiredAt.Load())
}

func TestMonitorExtendSessionResetsClockAndWarning(t *testing.T) {
	session := seededSession()
	m := NewActivityMonitor(session, noopCoordinator(session), MonitorConfig{
		SessionTimeout: 150 * time.Millisecond,
		WarningLead:    100 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	})

	var warnings atomic.Int32
	m.cfg.OnWarning = func(time.Duration) {
		warnings.Add(1)
		_ = m.ExtendSession(context.Background())
	}

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return warnings.Load() >= 2 }, 2*time.Second, 5*time.Millisecond,
		"extending re-arms the warning for the next cycle")
	assert.Equal(t, StateActive, m.State())
	assert.True(t, session.Authenticated())
}

func TestMonitorRefreshesWhileActive(t *testing.T) {
	session := seededSession()
	session.SetTokens(token.Pair{AccessToken: "old", RefreshToken: "refresh-1", ExpiresIn: 1})

	var refreshes atomic.Int32
	coordinator := NewRefreshCoordinator(session, func(ctx context.Context, refreshToken string) (*token.Pair, error) {
		refreshes.Add(1)
		return &token.Pair{AccessToken: "fresh", RefreshToken: refreshToken, ExpiresIn: 900}, nil
	}, nil)

	m := NewActivityMonitor(session, coordinator, MonitorConfig{
		InactivityTimeout: time.Minute,
		SessionTimeout:    time.Hour,
		PollInterval:      10 * time.Millisecond,
	})
	// Pretend the last refresh happened long ago so the 1s-ttl token
	// reads as expiring now.
	m.mu.Lock()
	m.lastRefresh = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return refreshes.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "fresh", session.AccessToken())
}

func TestMonitorRotatesAfterInactivity(t *testing.T) {
	session := seededSession()
	session.SetTokens(token.Pair{AccessToken: "old", RefreshToken: "refresh-1", ExpiresIn: 900})

	var refreshes atomic.Int32
	var logouts atomic.Int32
	coordinator := NewRefreshCoordinator(session, func(ctx context.Context, refreshToken string) (*token.Pair, error) {
		refreshes.Add(1)
		return &token.Pair{AccessToken: "fresh", RefreshToken: refreshToken, ExpiresIn: 900}, nil
	}, func(error) { logouts.Add(1) })

	m := NewActivityMonitor(session, coordinator, MonitorConfig{
		InactivityTimeout: 200 * time.Millisecond,
		SessionTimeout:    time.Hour,
		PollInterval:      10 * time.Millisecond,
	})
	// Last interaction 61 seconds ago, well past the idle threshold.
	m.mu.Lock()
	m.lastActivity = time.Now().Add(-61 * time.Second)
	m.mu.Unlock()

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return refreshes.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), refreshes.Load(), "successful rotation resets the idle clock")
	assert.Equal(t, "fresh", session.AccessToken())
	assert.True(t, session.Authenticated())
	assert.Zero(t, logouts.Load(), "no logout on a successful idle rotation")
	assert.Equal(t, StateActive, m.State())
}

func TestMonitorIdleRotationFailureEndsSession(t *testing.T) {
	session := seededSession()

	coordinator := NewRefreshCoordinator(session, func(ctx context.Context, refreshToken string) (*token.Pair, error) {
		return nil, apperrors.Unauthenticated("Invalid refresh token")
	}, nil)

	m := NewActivityMonitor(session, coordinator, MonitorConfig{
		InactivityTimeout: 10 * time.Millisecond,
		SessionTimeout:    time.Hour,
		PollInterval:      10 * time.Millisecond,
	})
	m.mu.Lock()
	m.lastActivity = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	var expired atomic.Bool
	m.cfg.OnExpired = func() { expired.Store(true) }

	m.Start()
	defer m.Stop()

	require.Eventually(t, expired.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateExpired, m.State())
	assert.False(t, session.Authenticated())
}

func TestMonitorIdleRotationTransientFailureKeepsSession(t *testing.T) {
	session := seededSession()

	var attempts atomic.Int32
	coordinator := NewRefreshCoordinator(session, func(ctx context.Context, refreshToken string) (*token.Pair, error) {
		if attempts.Add(1) == 1 {
			return nil, apperrors.Transient("auth service unreachable", nil)
		}
		return &token.Pair{AccessToken: "fresh", RefreshToken: refreshToken, ExpiresIn: 900}, nil
	}, nil)

	m := NewActivityMonitor(session, coordinator, MonitorConfig{
		InactivityTimeout: 10 * time.Millisecond,
		SessionTimeout:    time.Hour,
		PollInterval:      10 * time.Millisecond,
	})
	m.mu.Lock()
	m.lastActivity = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return session.AccessToken() == "fresh" }, time.Second, 5*time.Millisecond,
		"a later poll retries past the transient failure")
	assert.Equal(t, StateActive, m.State())
	assert.True(t, session.Authenticated())
}

func TestMonitorExtendSessionRotatesToken(t *testing.T) {
	session := seededSession()
	session.SetTokens(token.Pair{AccessToken: "old", RefreshToken: "refresh-1", ExpiresIn: 900})

	var refreshes atomic.Int32
	coordinator := NewRefreshCoordinator(session, func(ctx context.Context, refreshToken string) (*token.Pair, error) {
		refreshes.Add(1)
		return &token.Pair{AccessToken: "fresh", RefreshToken: refreshToken, ExpiresIn: 900}, nil
	}, nil)

	m := NewActivityMonitor(session, coordinator, MonitorConfig{SessionTimeout: time.Hour})
	before := m.sessionStart

	require.NoError(t, m.ExtendSession(context.Background()))

	assert.Equal(t, int32(1), refreshes.Load(), "extending rotates immediately")
	assert.Equal(t, "fresh", session.AccessToken())
	m.mu.Lock()
	assert.False(t, m.sessionStart.Before(before), "hard clock re-armed")
	m.mu.Unlock()
}

func TestMonitorExtendSessionKeepsClocksOnFailedRotation(t *testing.T) {
	session := seededSession()

	coordinator := NewRefreshCoordinator(session, func(ctx context.Context, refreshToken string) (*token.Pair, error) {
		return nil, apperrors.Transient("auth service unreachable", nil)
	}, nil)

	m := NewActivityMonitor(session, coordinator, MonitorConfig{SessionTimeout: time.Hour})
	m.mu.Lock()
	m.sessionStart = time.Now().Add(-30 * time.Minute)
	before := m.sessionStart
	m.mu.Unlock()

	require.Error(t, m.ExtendSession(context.Background()))

	m.mu.Lock()
	assert.Equal(t, before, m.sessionStart, "clocks only re-arm on a successful rotation")
	m.mu.Unlock()
}
