package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
)

// MonitorState is the session lifecycle as the activity monitor sees it.
type MonitorState int

const (
	StateActive MonitorState = iota
	StateWarning
	StateExpired
)

func (s MonitorState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

const (
	DefaultInactivityTimeout = 15 * time.Minute
	DefaultSessionTimeout    = 60 * time.Minute
	DefaultWarningLead       = 5 * time.Minute
	defaultPollInterval      = 30 * time.Second
	refreshLead              = time.Minute
)

type MonitorConfig struct {
	// InactivityTimeout is how long the user may be idle before the
	// monitor rotates the token on their behalf. A successful rotation
	// resets the idle clock; a failed one ends the session.
	InactivityTimeout time.Duration
	// SessionTimeout is the hard cap on session length. When it elapses
	// the session ends regardless of activity.
	SessionTimeout time.Duration
	// WarningLead is how long before SessionTimeout the warning fires.
	WarningLead time.Duration
	// PollInterval controls how often the monitor evaluates. Short
	// intervals are only useful in tests.
	PollInterval time.Duration

	// OnWarning fires once per session as the hard timeout approaches,
	// with the time remaining. ExtendSession resets it.
	OnWarning func(remaining time.Duration)
	// OnExpired fires once when the session hits the hard timeout.
	OnExpired func()
}

func (c *MonitorConfig) applyDefaults() {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.WarningLead <= 0 {
		c.WarningLead = DefaultWarningLead
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.OnWarning == nil {
		c.OnWarning = func(time.Duration) {}
	}
	if c.OnExpired == nil {
		c.OnExpired = func() {}
	}
}

// ActivityMonitor watches user activity against two clocks: an idle
// clock that rotates the token once the user has been inactive past
// InactivityTimeout, and a hard session clock that ends the session no
// matter what. Activity never extends the hard clock; only an explicit
// ExtendSession does.
type ActivityMonitor struct {
	session     *SessionStore
	coordinator *RefreshCoordinator
	cfg         MonitorConfig

	mu           sync.Mutex
	state        MonitorState
	lastActivity time.Time
	sessionStart time.Time
	lastRefresh  time.Time
	warned       bool

	done chan struct{}
	once sync.Once
}

func NewActivityMonitor(session *SessionStore, coordinator *RefreshCoordinator, cfg MonitorConfig) *ActivityMonitor {
	cfg.applyDefaults()
	now := time.Now()
	return &ActivityMonitor{
		session:      session,
		coordinator:  coordinator,
		cfg:          cfg,
		state:        StateActive,
		lastActivity: now,
		sessionStart: now,
		lastRefresh:  now,
		done:         make(chan struct{}),
	}
}

func (m *ActivityMonitor) Start() {
	go m.run()
}

func (m *ActivityMonitor) Stop() {
	m.once.Do(func() { close(m.done) })
}

func (m *ActivityMonitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Touch records user activity. Cheap enough to call on every
// interaction.
func (m *ActivityMonitor) Touch() {
	m.mu.Lock()
	if m.state != StateExpired {
		m.lastActivity = time.Now()
	}
	m.mu.Unlock()
}

// ExtendSession rotates the token and restarts the hard session clock,
// typically in response to the user acknowledging the expiry warning.
// The clocks re-arm only if the rotation succeeds, so an extension never
// rides on a near-dead access token.
func (m *ActivityMonitor) ExtendSession(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateExpired {
		m.mu.Unlock()
		return apperrors.Unauthenticated("Session already expired")
	}
	m.mu.Unlock()

	if _, err := m.coordinator.Refresh(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	now := time.Now()
	m.sessionStart = now
	m.lastActivity = now
	m.lastRefresh = now
	m.warned = false
	m.state = StateActive
	m.mu.Unlock()
	return nil
}

func (m *ActivityMonitor) run() {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evaluate(time.Now())
		}
	}
}

func (m *ActivityMonitor) evaluate(now time.Time) {
	m.mu.Lock()

	if m.state == StateExpired {
		m.mu.Unlock()
		return
	}

	elapsed := now.Sub(m.sessionStart)
	if elapsed >= m.cfg.SessionTimeout {
		m.state = StateExpired
		m.mu.Unlock()
		log.Info().Msg("session reached hard timeout")
		m.session.Clear()
		m.cfg.OnExpired()
		return
	}

	remaining := m.cfg.SessionTimeout - elapsed
	if remaining <= m.cfg.WarningLead && !m.warned {
		m.warned = true
		m.state = StateWarning
		m.mu.Unlock()
		m.cfg.OnWarning(remaining)
		return
	}

	idle := now.Sub(m.lastActivity)
	nearExpiry := m.tokenNearExpiryLocked(now)
	m.mu.Unlock()

	// An idle session rotates its token instead of lapsing; an active
	// one rotates shortly before the access token expires. Either way a
	// single coordinated refresh settles it.
	if (idle >= m.cfg.InactivityTimeout || nearExpiry) && !m.coordinator.Refreshing() {
		m.refresh()
	}
}

func (m *ActivityMonitor) tokenNearExpiryLocked(now time.Time) bool {
	ttl := m.session.TokenExpiry()
	if ttl <= 0 {
		return false
	}
	return now.Sub(m.lastRefresh) >= ttl-refreshLead
}

func (m *ActivityMonitor) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := m.coordinator.Refresh(ctx); err != nil {
		if apperrors.IsRetryable(err) {
			log.Warn().Err(err).Msg("background token refresh failed, will retry")
			return
		}
		m.expire(err)
		return
	}

	m.mu.Lock()
	now := time.Now()
	m.lastRefresh = now
	m.lastActivity = now
	m.mu.Unlock()
}

func (m *ActivityMonitor) expire(err error) {
	m.mu.Lock()
	if m.state == StateExpired {
		m.mu.Unlock()
		return
	}
	m.state = StateExpired
	m.mu.Unlock()

	log.Warn().Err(err).Msg("background token refresh failed, ending session")
	m.session.Clear()
	m.cfg.OnExpired()
}
