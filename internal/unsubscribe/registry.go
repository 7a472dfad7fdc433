package unsubscribe

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/maisondore/newsletter/internal/domain"
	"github.com/maisondore/newsletter/internal/pkg/logger"
)

// ErrAllBackendsFailed is returned when an exclusion could not be recorded
// anywhere. With the in-process mirror in place this is effectively
// unreachable, but the contract exists so callers can fail closed.
var ErrAllBackendsFailed = errors.New("unsubscribe write failed on every backend")

// Repository is the durable store contract for the registry.
type Repository interface {
	Add(ctx context.Context, e domain.UnsubscribeEntry) error
	Contains(ctx context.Context, email string) (bool, error)
	ListAll(ctx context.Context) ([]domain.UnsubscribeEntry, error)
}

// Registry merges the durable repository with the volatile mirror. Safe for
// concurrent use.
type Registry struct {
	repo    Repository // may be nil when no durable store is configured
	timeout time.Duration

	mu      sync.RWMutex
	mirror  map[string]domain.UnsubscribeEntry // every exclusion observed this process lifetime
	pending map[string]domain.UnsubscribeEntry // observed but not yet durably written
}

// NewRegistry creates a registry over the durable repository. repo may be
// nil; the registry then runs on the mirror alone.
func NewRegistry(repo Repository, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Registry{
		repo:    repo,
		timeout: timeout,
		mirror:  make(map[string]domain.UnsubscribeEntry),
		pending: make(map[string]domain.UnsubscribeEntry),
	}
}

// Add records an exclusion. Idempotent: repeat calls succeed, the last reason
// wins, and the original unsubscribed_at is preserved. The mirror write makes
// the exclusion immediately visible even if the durable write fails; failed
// durable writes are queued and retried by the sync loop.
func (r *Registry) Add(ctx context.Context, email, reason string) error {
	email = domain.NormalizeEmail(email)
	now := time.Now().UTC()

	r.mu.Lock()
	entry, seen := r.mirror[email]
	if seen {
		entry.Reason = reason
	} else {
		entry = domain.UnsubscribeEntry{Email: email, UnsubscribedAt: now, Reason: reason}
	}
	r.mirror[email] = entry
	r.mu.Unlock()

	if r.repo == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.repo.Add(callCtx, entry)
	cancel()
	if err != nil {
		logger.Warn("unsubscribe: durable add failed, queued for re-sync",
			"email", email, "error", err)
		r.mu.Lock()
		r.pending[email] = entry
		r.mu.Unlock()
	}
	return nil
}

// Contains reports whether the email is excluded, consulting the mirror
// first and the durable store on a miss.
func (r *Registry) Contains(ctx context.Context, email string) bool {
	email = domain.NormalizeEmail(email)

	r.mu.RLock()
	_, ok := r.mirror[email]
	r.mu.RUnlock()
	if ok {
		return true
	}

	if r.repo == nil {
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	found, err := r.repo.Contains(callCtx, email)
	cancel()
	if err != nil {
		logger.Warn("unsubscribe: durable lookup failed", "email", email, "error", err)
		return false
	}
	return found
}

// ListAll returns every known exclusion, durable and mirror merged, most
// recent first. A durable-store failure degrades to the mirror contents.
func (r *Registry) ListAll(ctx context.Context) ([]domain.UnsubscribeEntry, error) {
	merged := make(map[string]domain.UnsubscribeEntry)

	if r.repo != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		durable, err := r.repo.ListAll(callCtx)
		cancel()
		if err != nil {
			logger.Warn("unsubscribe: durable list failed, serving mirror only", "error", err)
		} else {
			for _, e := range durable {
				merged[domain.NormalizeEmail(e.Email)] = e
			}
		}
	}

	r.mu.RLock()
	for email, e := range r.mirror {
		if _, ok := merged[email]; !ok {
			merged[email] = e
		}
	}
	r.mu.RUnlock()

	out := make([]domain.UnsubscribeEntry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UnsubscribedAt.After(out[j].UnsubscribedAt)
	})
	return out, nil
}

// StartSync runs the re-sync loop until ctx is cancelled.
func (r *Registry) StartSync(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sync(ctx)
			}
		}
	}()
}

// Sync flushes pending exclusions to the durable store, then refreshes the
// mirror from it. Mirror entries are only ever added, never removed.
func (r *Registry) Sync(ctx context.Context) {
	if r.repo == nil {
		return
	}

	r.mu.Lock()
	queued := make([]domain.UnsubscribeEntry, 0, len(r.pending))
	for _, e := range r.pending {
		queued = append(queued, e)
	}
	r.mu.Unlock()

	for _, e := range queued {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.repo.Add(callCtx, e)
		cancel()
		if err != nil {
			logger.Warn("unsubscribe: re-sync flush failed", "email", e.Email, "error", err)
			continue
		}
		email := domain.NormalizeEmail(e.Email)
		r.mu.Lock()
		// A concurrent Add may have re-queued this email with a newer
		// reason; only the entry we actually flushed is settled.
		if cur, ok := r.pending[email]; ok && cur == e {
			delete(r.pending, email)
		}
		r.mu.Unlock()
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	durable, err := r.repo.ListAll(callCtx)
	cancel()
	if err != nil {
		logger.Warn("unsubscribe: re-sync refresh failed", "error", err)
		return
	}

	r.mu.Lock()
	for _, e := range durable {
		email := domain.NormalizeEmail(e.Email)
		if _, ok := r.mirror[email]; !ok {
			r.mirror[email] = e
		}
	}
	r.mu.Unlock()
}

// PendingCount reports how many exclusions still await a durable write.
// Exposed for the health endpoint.
func (r *Registry) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}
