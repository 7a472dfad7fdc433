package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/maisondore/newsletter/internal/domain"
)

// FileBackend is an append-only local file: one JSON record per line, synced
// on every write. It is the durable fallback when Postgres is unreachable.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend creates a file backend at path, creating parent directories
// as needed.
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &FileBackend{path: path}, nil
}

func (f *FileBackend) Name() string { return "file" }

func (f *FileBackend) Append(_ context.Context, e domain.BackupEntry) error {
	e.Email = domain.NormalizeEmail(e.Email)
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal backup entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open backup file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write backup entry: %w", err)
	}
	// The file is the durability fallback; a buffered write that a crash
	// can lose defeats its purpose.
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync backup file: %w", err)
	}
	return nil
}

func (f *FileBackend) List(_ context.Context) ([]domain.BackupEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open backup file: %w", err)
	}
	defer file.Close()

	var entries []domain.BackupEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e domain.BackupEntry
		if err := json.Unmarshal(line, &e); err != nil {
			// A torn final line from a crashed write is expected; skip it.
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read backup file: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

func (f *FileBackend) MarkConfirmed(ctx context.Context, email string) error {
	return f.Append(ctx, confirmationEntry(email))
}
