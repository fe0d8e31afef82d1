package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthfirst/portal/internal/platform/kvstore"
	"github.com/healthfirst/portal/internal/platform/notification"
)

// DefaultIdleTimeout is how long a session may sit unused before the reaper
// unmounts it.
const DefaultIdleTimeout = 30 * time.Minute

var (
	ErrUnknownFlow     = errors.New("unknown flow")
	ErrSessionNotFound = errors.New("session not found")
)

// ManagerConfig holds what every session opened by a Manager shares.
type ManagerConfig struct {
	Flows    *Registry
	Store    kvstore.Store
	Notifier notification.Notifier
	Logger   zerolog.Logger

	AutosaveInterval time.Duration
	IdleTimeout      time.Duration
	Now              func() time.Time
}

type slot struct {
	flow  string
	owner string
}

// Manager owns the mounted sessions of a server. A draft slot has a single
// writer: at most one session per flow and owner is mounted at a time.
type Manager struct {
	cfg    ManagerConfig
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	slots    map[slot]string
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "wizard").Logger(),
		sessions: make(map[string]*Session),
		slots:    make(map[slot]string),
	}
}

// Open mounts a session of flow for owner, or returns the one already
// mounted for that pair. created reports whether a new session was mounted.
func (m *Manager) Open(ctx context.Context, flowName, owner string) (sess *Session, created bool, err error) {
	flow, sub, ok := m.cfg.Flows.Get(flowName)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownFlow, flowName)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := slot{flow: flowName, owner: owner}
	if id, ok := m.slots[key]; ok {
		existing := m.sessions[id]
		if existing.State().Status != StatusSubmitted {
			existing.touch()
			return existing, false, nil
		}
		// A submitted wizard is finished; the owner starts a fresh one.
		delete(m.sessions, id)
		delete(m.slots, key)
		_ = existing.Unmount(ctx)
	}

	sess = NewSession(SessionConfig{
		ID:               uuid.NewString(),
		Owner:            owner,
		Flow:             flow,
		Drafts:           NewDrafts(m.cfg.Store, flow, owner, m.logger),
		Submitter:        sub,
		Notifier:         m.cfg.Notifier,
		Logger:           m.logger,
		AutosaveInterval: m.cfg.AutosaveInterval,
		Now:              m.cfg.Now,
	})
	sess.Mount(ctx)
	m.sessions[sess.ID()] = sess
	m.slots[key] = sess.ID()

	m.logger.Info().Str("flow", flowName).Str("session_id", sess.ID()).Str("owner", owner).Msg("session opened")
	return sess, true, nil
}

// Get returns the mounted session id and counts the lookup as activity.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch()
	return sess, nil
}

// Close unmounts session id and forgets it.
func (m *Manager) Close(ctx context.Context, id string) error {
	sess, err := m.detach(id)
	if err != nil {
		return err
	}
	return sess.Unmount(ctx)
}

func (m *Manager) detach(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.slots, slot{flow: sess.Flow().Name, owner: sess.Owner()})
	return sess, nil
}

// Len returns the number of mounted sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap unmounts sessions idle longer than the idle timeout and returns how
// many it closed.
func (m *Manager) Reap(ctx context.Context) int {
	cutoff := m.cfg.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []string
	for id, sess := range m.sessions {
		if sess.LastActive().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, id := range idle {
		sess, err := m.detach(id)
		if err != nil {
			continue
		}
		if err := sess.Unmount(ctx); err != nil {
			m.logger.Error().Err(err).Str("session_id", id).Msg("unmount idle session")
		}
		m.logger.Info().Str("session_id", id).Str("flow", sess.Flow().Name).Msg("reaped idle session")
		closed++
	}
	return closed
}

// Run reaps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(ctx)
		}
	}
}

// Shutdown unmounts every session, saving their drafts.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Error().Err(err).Str("session_id", id).Msg("unmount on shutdown")
		}
	}
}
