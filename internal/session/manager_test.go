package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/vizai/pkg/models"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, store Store) (*Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(store, time.Hour)
	m.SetClock(c.now)
	return m, c
}

func strPtr(s string) *string { return &s }

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore())

	var closed []string
	m.OnClose(func(id string) { closed = append(closed, id) })

	s, err := m.CreateSession(ctx, models.SessionConfig{Model: "deepseek-ai/DeepSeek-V3"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, s.Status)
	assert.NotEmpty(t, s.ID)

	s, err = m.UpdateConfig(ctx, s.ID, models.UpdateConfigRequest{LLMAPIKey: strPtr("tg-secret-key")})
	require.NoError(t, err)
	assert.Equal(t, "tg-secret-key", s.Config.LLMAPIKey)
	assert.Equal(t, "deepseek-ai/DeepSeek-V3", s.Config.Model)

	ds := &models.Dataset{Name: "sales.csv", Path: "./sales.csv", LocalPath: "/data/x/sales.csv"}
	_, err = m.AttachDataset(ctx, s.ID, ds)
	require.NoError(t, err)

	got, err := m.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Dataset)
	assert.Equal(t, "./sales.csv", got.Dataset.Path)

	view := got.View()
	assert.Equal(t, "tg-****key", view.Config.LLMAPIKey)
	assert.Empty(t, view.Dataset.LocalPath)

	list, err := m.ListSessions(ctx, models.StatusActive)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, m.DeleteSession(ctx, s.ID))
	_, err = m.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{s.ID}, closed)

	assert.ErrorIs(t, m.DeleteSession(ctx, s.ID), ErrNotFound)
}

func TestStoredCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore())
	s, err := m.CreateSession(ctx, models.SessionConfig{})
	require.NoError(t, err)

	s.Config.LLMAPIKey = "mutated"
	got, err := m.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Config.LLMAPIKey)
}

func TestAcquireRejectsConcurrentAnalysis(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())

	releaseA, err := m.Acquire("a")
	require.NoError(t, err)
	_, err = m.Acquire("a")
	assert.ErrorIs(t, err, ErrBusy)
	// other sessions are independent
	_, err = m.Acquire("b")
	require.NoError(t, err)

	releaseA()
	releaseA()
	_, err = m.Acquire("a")
	assert.NoError(t, err)
}

func TestDeleteDuringAnalysisKeepsSlotHeld(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore())
	s, err := m.CreateSession(ctx, models.SessionConfig{})
	require.NoError(t, err)

	release, err := m.Acquire(s.ID)
	require.NoError(t, err)
	require.NoError(t, m.DeleteSession(ctx, s.ID))

	// a request that loaded the session before the delete still sees it busy
	_, err = m.Acquire(s.ID)
	assert.ErrorIs(t, err, ErrBusy)

	assert.NotPanics(t, release)
	m.locksMu.Lock()
	assert.Empty(t, m.locks)
	m.locksMu.Unlock()
}

func TestDeleteIdleSessionDropsSlot(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore())
	s, err := m.CreateSession(ctx, models.SessionConfig{})
	require.NoError(t, err)

	release, err := m.Acquire(s.ID)
	require.NoError(t, err)
	release()
	require.NoError(t, m.DeleteSession(ctx, s.ID))

	m.locksMu.Lock()
	assert.Empty(t, m.locks)
	m.locksMu.Unlock()
}

func TestTouchNearExpirySurvivesSweep(t *testing.T) {
	ctx := context.Background()
	m, c := newTestManager(t, NewMemoryStore())
	s, err := m.CreateSession(ctx, models.SessionConfig{})
	require.NoError(t, err)

	c.advance(59 * time.Minute)
	require.NoError(t, m.Touch(ctx, s.ID))
	c.advance(2 * time.Minute)

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = m.GetSession(ctx, s.ID)
	assert.NoError(t, err)
}

func TestIdleExpiry(t *testing.T) {
	ctx := context.Background()
	m, c := newTestManager(t, NewMemoryStore())
	var closed []string
	m.OnClose(func(id string) { closed = append(closed, id) })

	idle, err := m.CreateSession(ctx, models.SessionConfig{})
	require.NoError(t, err)
	active, err := m.CreateSession(ctx, models.SessionConfig{})
	require.NoError(t, err)

	c.advance(45 * time.Minute)
	require.NoError(t, m.Touch(ctx, active.ID))
	c.advance(30 * time.Minute)

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{idle.ID}, closed)

	_, err = m.GetSession(ctx, active.ID)
	require.NoError(t, err)

	c.advance(2 * time.Hour)
	_, err = m.GetSession(ctx, active.ID)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, []string{idle.ID, active.ID}, closed)
}

func TestUpdateUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	_, err := m.UpdateConfig(context.Background(), "missing", models.UpdateConfigRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("VIZAI_TEST_REDIS_URL")
	if url == "" {
		t.Skip("VIZAI_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(ctx, url)
	require.NoError(t, err)
	defer store.Close()

	m := NewManager(store, time.Hour)
	s, err := m.CreateSession(ctx, models.SessionConfig{Model: "m"})
	require.NoError(t, err)
	defer m.DeleteSession(ctx, s.ID)

	_, err = m.AttachDataset(ctx, s.ID, &models.Dataset{Name: "a.csv", Path: "./a.csv"})
	require.NoError(t, err)

	got, err := m.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "m", got.Config.Model)
	assert.Equal(t, "./a.csv", got.Dataset.Path)

	ttl, err := store.client.TTL(ctx, keyPrefix+s.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)
}
