package unsubscribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maisondore/newsletter/internal/domain"
)

type memUnsubRepo struct {
	mu      sync.Mutex
	entries map[string]domain.UnsubscribeEntry
	down    bool
}

func newMemUnsubRepo() *memUnsubRepo {
	return &memUnsubRepo{entries: make(map[string]domain.UnsubscribeEntry)}
}

func (m *memUnsubRepo) Add(_ context.Context, e domain.UnsubscribeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errors.New("connection refused")
	}
	if existing, ok := m.entries[e.Email]; ok {
		existing.Reason = e.Reason
		m.entries[e.Email] = existing
		return nil
	}
	m.entries[e.Email] = e
	return nil
}

func (m *memUnsubRepo) Contains(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return false, errors.New("connection refused")
	}
	_, ok := m.entries[email]
	return ok, nil
}

func (m *memUnsubRepo) ListAll(_ context.Context) ([]domain.UnsubscribeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errors.New("connection refused")
	}
	out := make([]domain.UnsubscribeEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *memUnsubRepo) setDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

func TestRegistry_AddAndContains(t *testing.T) {
	repo := newMemUnsubRepo()
	reg := NewRegistry(repo, time.Second)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, " Someone@Example.COM ", domain.UnsubscribeUserRequest))

	assert.True(t, reg.Contains(ctx, "someone@example.com"))
	assert.True(t, reg.Contains(ctx, "SOMEONE@example.com"))
	assert.False(t, reg.Contains(ctx, "other@example.com"))
	assert.Equal(t, 0, reg.PendingCount())
}

func TestRegistry_AddIdempotent_PreservesOriginalTimestamp(t *testing.T) {
	repo := newMemUnsubRepo()
	reg := NewRegistry(repo, time.Second)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "a@x.com", domain.UnsubscribeUserRequest))
	first, err := reg.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, reg.Add(ctx, "a@x.com", domain.UnsubscribeManual))

	second, err := reg.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].UnsubscribedAt, second[0].UnsubscribedAt)
	assert.Equal(t, domain.UnsubscribeManual, second[0].Reason)
}

func TestRegistry_AddSucceedsWhenDurableDown(t *testing.T) {
	repo := newMemUnsubRepo()
	repo.setDown(true)
	reg := NewRegistry(repo, time.Second)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "a@x.com", domain.UnsubscribeUserRequest))

	// Exclusion visible immediately even though the durable write failed.
	assert.True(t, reg.Contains(ctx, "a@x.com"))
	assert.Equal(t, 1, reg.PendingCount())
}

func TestRegistry_SyncFlushesPending(t *testing.T) {
	repo := newMemUnsubRepo()
	repo.setDown(true)
	reg := NewRegistry(repo, time.Second)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "a@x.com", domain.UnsubscribeUserRequest))
	require.Equal(t, 1, reg.PendingCount())

	repo.setDown(false)
	reg.Sync(ctx)

	assert.Equal(t, 0, reg.PendingCount())
	found, err := repo.Contains(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, found)
}

// hookedUnsubRepo runs a one-shot hook before delegating an Add, so tests
// can interleave registry calls with an in-flight flush.
type hookedUnsubRepo struct {
	*memUnsubRepo
	hookMu sync.Mutex
	hook   func()
}

func (h *hookedUnsubRepo) Add(ctx context.Context, e domain.UnsubscribeEntry) error {
	h.hookMu.Lock()
	hook := h.hook
	h.hook = nil
	h.hookMu.Unlock()
	if hook != nil {
		hook()
	}
	return h.memUnsubRepo.Add(ctx, e)
}

func TestRegistry_SyncKeepsEntryRequeuedDuringFlush(t *testing.T) {
	repo := &hookedUnsubRepo{memUnsubRepo: newMemUnsubRepo()}
	reg := NewRegistry(repo, time.Second)
	ctx := context.Background()

	repo.setDown(true)
	require.NoError(t, reg.Add(ctx, "a@x.com", domain.UnsubscribeUserRequest))
	require.Equal(t, 1, reg.PendingCount())
	repo.setDown(false)

	// While Sync flushes the queued entry, a concurrent Add updates the
	// reason and fails durably, re-queueing the email.
	repo.hook = func() {
		repo.setDown(true)
		require.NoError(t, reg.Add(ctx, "a@x.com", domain.UnsubscribeManual))
		repo.setDown(false)
	}
	reg.Sync(ctx)

	// The re-queued entry must survive the flush bookkeeping.
	require.Equal(t, 1, reg.PendingCount())

	reg.Sync(ctx)
	assert.Equal(t, 0, reg.PendingCount())

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.UnsubscribeManual, all[0].Reason)
}

func TestRegistry_SyncRefreshesMirror(t *testing.T) {
	repo := newMemUnsubRepo()
	ctx := context.Background()

	// Exclusion written by another process, unknown to this mirror.
	require.NoError(t, repo.Add(ctx, domain.UnsubscribeEntry{
		Email:          "elsewhere@x.com",
		UnsubscribedAt: time.Now().UTC(),
		Reason:         domain.UnsubscribeManual,
	}))

	reg := NewRegistry(repo, time.Second)
	reg.Sync(ctx)

	repo.setDown(true)
	assert.True(t, reg.Contains(ctx, "elsewhere@x.com"))
}

func TestRegistry_ListAllMergesMirrorAndDurable(t *testing.T) {
	repo := newMemUnsubRepo()
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, domain.UnsubscribeEntry{
		Email:          "durable@x.com",
		UnsubscribedAt: time.Now().UTC().Add(-time.Hour),
		Reason:         domain.UnsubscribeManual,
	}))

	reg := NewRegistry(repo, time.Second)
	repo.setDown(true)
	require.NoError(t, reg.Add(ctx, "mirror@x.com", domain.UnsubscribeUserRequest))
	repo.setDown(false)

	all, err := reg.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "mirror@x.com", all[0].Email)
	assert.Equal(t, "durable@x.com", all[1].Email)
}

func TestRegistry_ListAllDegradesToMirror(t *testing.T) {
	repo := newMemUnsubRepo()
	reg := NewRegistry(repo, time.Second)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "a@x.com", domain.UnsubscribeUserRequest))
	repo.setDown(true)

	all, err := reg.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a@x.com", all[0].Email)
}

func TestRegistry_NoDurableRepo(t *testing.T) {
	reg := NewRegistry(nil, time.Second)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "a@x.com", domain.UnsubscribeUserRequest))
	assert.True(t, reg.Contains(ctx, "a@x.com"))
	reg.Sync(ctx)

	all, err := reg.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
