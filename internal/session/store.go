package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shehryarbajwa/vizai/pkg/models"
)

// ErrNotFound is returned for unknown or already removed sessions.
var ErrNotFound = errors.New("session not found")

// Store persists sessions. Implementations store copies, so callers may
// mutate what they pass in or get back.
type Store interface {
	Save(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Session, error)
}

// MemoryStore keeps sessions in process.
type MemoryStore struct {
	sessions sync.Map // map[id]models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, s *models.Session) error {
	m.sessions.Store(s.ID, *clone(s))
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	value, ok := m.sessions.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	s := value.(models.Session)
	return clone(&s), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.sessions.Delete(id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	m.sessions.Range(func(_, value any) bool {
		s := value.(models.Session)
		sessions = append(sessions, clone(&s))
		return true
	})
	sortByCreated(sessions)
	return sessions, nil
}

func clone(s *models.Session) *models.Session {
	c := *s
	if s.Dataset != nil {
		ds := *s.Dataset
		c.Dataset = &ds
	}
	return &c
}

func sortByCreated(sessions []*models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
