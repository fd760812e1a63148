package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/vizai/internal/logger"
	"github.com/shehryarbajwa/vizai/pkg/models"
)

var (
	// ErrBusy is returned when an analysis is already running for the session.
	ErrBusy = errors.New("an analysis is already running for this session")
	// ErrExpired is returned for sessions idle past their TTL.
	ErrExpired = errors.New("session expired")
)

// Manager handles all session operations
type Manager struct {
	store   Store
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex // serialises read-modify-write on the store
	locksMu sync.Mutex
	locks   map[string]*slot
	onClose []func(id string)
	log     zerolog.Logger
}

// NewManager creates a session manager. Sessions expire after ttl without activity.
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		locks: make(map[string]*slot),
		log:   logger.With("session"),
	}
}

// slot is a session's single analysis permit. A slot closed while held is
// dropped by its holder's release.
type slot struct {
	sem    *semaphore.Weighted
	closed bool
}

// SetClock replaces the time source used for expiry.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// OnClose registers cleanup run when a session is deleted or expires.
func (m *Manager) OnClose(fn func(id string)) {
	m.onClose = append(m.onClose, fn)
}

// CreateSession creates a new session with optional initial config
func (m *Manager) CreateSession(ctx context.Context, cfg models.SessionConfig) (*models.Session, error) {
	now := m.now()
	s := &models.Session{
		ID:           uuid.New().String(),
		Status:       models.StatusActive,
		Config:       cfg,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	m.log.Info().Str("session", s.ID).Msg("session created")
	return s, nil
}

// GetSession retrieves a session by ID. Sessions past their expiry are closed here.
func (m *Manager) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.now().After(s.ExpiresAt) {
		m.expire(ctx, s)
		return nil, ErrExpired
	}
	return s, nil
}

// ListSessions returns all sessions, optionally filtered by status
func (m *Manager) ListSessions(ctx context.Context, status models.SessionStatus) ([]*models.Session, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]*models.Session, 0, len(all))
	for _, s := range all {
		if status != "" && s.Status != status {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// UpdateConfig merges credential and model changes into the session.
func (m *Manager) UpdateConfig(ctx context.Context, id string, req models.UpdateConfigRequest) (*models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) {
		s.Config = req.Apply(s.Config)
	})
}

// AttachDataset records the uploaded dataset on the session, replacing any previous one.
func (m *Manager) AttachDataset(ctx context.Context, id string, ds *models.Dataset) (*models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) {
		s.Dataset = ds
	})
}

// Touch extends the session's idle deadline.
func (m *Manager) Touch(ctx context.Context, id string) error {
	_, err := m.update(ctx, id, func(*models.Session) {})
	return err
}

func (m *Manager) update(ctx context.Context, id string, fn func(*models.Session)) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(s)
	now := m.now()
	s.LastActiveAt = now
	s.ExpiresAt = now.Add(m.ttl)
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteSession closes the session and releases everything attached to it
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	if _, err := m.store.Get(ctx, id); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.cleanup(id)
	m.log.Info().Str("session", id).Msg("session closed")
	return nil
}

// Acquire claims the session's single analysis slot without blocking. The
// returned func frees exactly that slot and must be called once.
func (m *Manager) Acquire(id string) (release func(), err error) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	sl, ok := m.locks[id]
	if !ok {
		sl = &slot{sem: semaphore.NewWeighted(1)}
		m.locks[id] = sl
	}
	if !sl.sem.TryAcquire(1) {
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.locksMu.Lock()
			defer m.locksMu.Unlock()
			sl.sem.Release(1)
			if sl.closed && m.locks[id] == sl {
				delete(m.locks, id)
			}
		})
	}, nil
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := m.Sweep(ctx); err != nil {
				m.log.Warn().Err(err).Msg("session sweep failed")
			} else if n > 0 {
				m.log.Info().Int("expired", n).Msg("expired idle sessions")
			}
		}
	}
}

// Sweep closes every session past its expiry and returns how many it closed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	n := 0
	now := m.now()
	for _, s := range all {
		if now.After(s.ExpiresAt) {
			m.expire(ctx, s)
			n++
		}
	}
	return n, nil
}

func (m *Manager) expire(ctx context.Context, s *models.Session) {
	if err := m.store.Delete(ctx, s.ID); err != nil {
		m.log.Warn().Err(err).Str("session", s.ID).Msg("failed to delete expired session")
		return
	}
	m.cleanup(s.ID)
	m.log.Info().Str("session", s.ID).Msg("session expired")
}

func (m *Manager) cleanup(id string) {
	m.locksMu.Lock()
	if sl, ok := m.locks[id]; ok {
		if sl.sem.TryAcquire(1) {
			delete(m.locks, id)
		} else {
			// an analysis still holds it
			sl.closed = true
		}
	}
	m.locksMu.Unlock()
	for _, fn := range m.onClose {
		fn(id)
	}
}
