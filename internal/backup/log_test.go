package backup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/maisondore/newsletter/internal/domain"
)

// downBackend refuses every call.
type downBackend struct{}

func (downBackend) Name() string                                   { return "down" }
func (downBackend) Append(context.Context, domain.BackupEntry) error { return errors.New("unreachable") }
func (downBackend) List(context.Context) ([]domain.BackupEntry, error) {
	return nil, errors.New("unreachable")
}
func (downBackend) MarkConfirmed(context.Context, string) error { return errors.New("unreachable") }

func entry(email string, ts time.Time, confirmed bool, source domain.BackupSource) domain.BackupEntry {
	return domain.BackupEntry{Email: email, Timestamp: ts, Confirmed: confirmed, Source: source}
}

func TestAppend_FailsOverToNextBackend(t *testing.T) {
	mem := NewMemoryBackend()
	log := NewLog(time.Second, downBackend{}, mem)

	ok := log.Append(context.Background(), entry("a@x.com", time.Now(), false, domain.BackupSubscription))
	if !ok {
		t.Fatal("expected append to succeed via memory backend")
	}
	if mem.Len() != 1 {
		t.Errorf("expected 1 entry in memory backend, got %d", mem.Len())
	}
}

func TestAppend_AllBackendsDown(t *testing.T) {
	log := NewLog(time.Second, downBackend{}, downBackend{})

	ok := log.Append(context.Background(), entry("lost@x.com", time.Now(), false, domain.BackupSubscription))
	if ok {
		t.Error("expected append to report failure when every backend is down")
	}
}

func TestListAll_MostRecentFirst(t *testing.T) {
	mem := NewMemoryBackend()
	log := NewLog(time.Second, mem)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log.Append(ctx, entry("old@x.com", base, false, domain.BackupSubscription))
	log.Append(ctx, entry("new@x.com", base.Add(time.Hour), false, domain.BackupSubscription))

	entries, err := log.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Email != "new@x.com" {
		t.Errorf("expected most recent entry first, got %s", entries[0].Email)
	}
}

func TestListAll_FallsBackWhenPrimaryDown(t *testing.T) {
	mem := NewMemoryBackend()
	mem.Append(context.Background(), entry("kept@x.com", time.Now(), false, domain.BackupSubscription))
	log := NewLog(time.Second, downBackend{}, mem)

	entries, err := log.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(entries) != 1 || entries[0].Email != "kept@x.com" {
		t.Errorf("expected fallback listing, got %+v", entries)
	}
}

func TestFindByEmail_FoldsEntries(t *testing.T) {
	mem := NewMemoryBackend()
	log := NewLog(time.Second, mem)
	ctx := context.Background()

	log.Append(ctx, entry("Fold@X.com", time.Now(), false, domain.BackupSubscription))

	exists, confirmed, err := log.FindByEmail(ctx, "fold@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if !exists || confirmed {
		t.Errorf("expected exists=true confirmed=false, got %v %v", exists, confirmed)
	}

	if !log.MarkConfirmed(ctx, "fold@x.com") {
		t.Fatal("MarkConfirmed failed")
	}

	_, confirmed, err = log.FindByEmail(ctx, "FOLD@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if !confirmed {
		t.Error("expected confirmed=true after MarkConfirmed")
	}
}

func TestConfirmationMonotonic(t *testing.T) {
	mem := NewMemoryBackend()
	log := NewLog(time.Second, mem)
	ctx := context.Background()

	log.Append(ctx, entry("mono@x.com", time.Now(), false, domain.BackupSubscription))
	log.MarkConfirmed(ctx, "mono@x.com")
	// A later unconfirmed subscription event must not revert the summary.
	log.Append(ctx, entry("mono@x.com", time.Now().Add(time.Minute), false, domain.BackupSubscription))

	_, confirmed, err := log.FindByEmail(ctx, "mono@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if !confirmed {
		t.Error("confirmation must be monotonic across subsequent events")
	}
}

func TestReduce(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []domain.BackupEntry{
		entry("A@X.com", base.Add(2*time.Hour), true, domain.BackupConfirmation),
		entry("a@x.com", base, false, domain.BackupSubscription),
		entry("b@x.com", base.Add(time.Hour), false, domain.BackupSubscription),
	}

	reduced := Reduce(entries)
	if len(reduced) != 2 {
		t.Fatalf("expected 2 reduced entries, got %d", len(reduced))
	}

	var a, b *ReducedEntry
	for i := range reduced {
		switch reduced[i].Email {
		case "a@x.com":
			a = &reduced[i]
		case "b@x.com":
			b = &reduced[i]
		}
	}
	if a == nil || b == nil {
		t.Fatalf("missing reduced entries: %+v", reduced)
	}

	if !a.SubscribedAt.Equal(base) {
		t.Errorf("expected earliest timestamp for a@x.com, got %v", a.SubscribedAt)
	}
	if !a.Confirmed || a.ConfirmedAt == nil || !a.ConfirmedAt.Equal(base.Add(2*time.Hour)) {
		t.Errorf("expected a@x.com confirmed at latest confirmation, got %+v", a)
	}
	if b.Confirmed {
		t.Error("b@x.com should not be confirmed")
	}

	// Sorted by SubscribedAt descending.
	if !reduced[0].SubscribedAt.After(reduced[1].SubscribedAt) {
		t.Errorf("expected descending sort, got %v then %v", reduced[0].SubscribedAt, reduced[1].SubscribedAt)
	}
}

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.jsonl")
	fb, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := fb.Append(ctx, entry("File@X.com", base, false, domain.BackupSubscription)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := fb.MarkConfirmed(ctx, "file@x.com"); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}

	entries, err := fb.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Email normalized on write.
	for _, e := range entries {
		if e.Email != "file@x.com" {
			t.Errorf("expected normalized email, got %q", e.Email)
		}
	}
	// Confirmation entry is most recent.
	if entries[0].Source != domain.BackupConfirmation || !entries[0].Confirmed {
		t.Errorf("expected confirmation entry first, got %+v", entries[0])
	}
}

func TestFileBackend_EmptyFile(t *testing.T) {
	fb, err := NewFileBackend(filepath.Join(t.TempDir(), "missing.jsonl"))
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	entries, err := fb.List(context.Background())
	if err != nil {
		t.Fatalf("List on missing file: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}
