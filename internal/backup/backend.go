package backup

import (
	"context"
	"sort"
	"sync"

	"github.com/maisondore/newsletter/internal/domain"
)

// Backend is one storage target for backup entries. Implementations must be
// safe for concurrent use.
type Backend interface {
	// Name identifies the backend in logs ("postgres", "file", "memory").
	Name() string

	// Append durably records one event.
	Append(ctx context.Context, e domain.BackupEntry) error

	// List returns every recorded event, most-recent-first.
	List(ctx context.Context) ([]domain.BackupEntry, error)

	// MarkConfirmed records a confirmation event for the normalized email.
	// Backends that support read-modify-write also flip the confirmed flag
	// on the email's most recent entry; appending the confirmation event is
	// the minimum contract.
	MarkConfirmed(ctx context.Context, email string) error
}

// MemoryBackend keeps entries in process memory. It is the last rung of the
// chain: entries here survive a store outage but not a process restart.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries []domain.BackupEntry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Append(_ context.Context, e domain.BackupEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Email = domain.NormalizeEmail(e.Email)
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryBackend) List(_ context.Context) ([]domain.BackupEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.BackupEntry, len(m.entries))
	copy(out, m.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryBackend) MarkConfirmed(ctx context.Context, email string) error {
	return m.Append(ctx, confirmationEntry(email))
}

// Len reports how many entries are held in memory.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
