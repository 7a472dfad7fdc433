package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maisondore/newsletter/internal/backup"
	"github.com/maisondore/newsletter/internal/cache"
	"github.com/maisondore/newsletter/internal/domain"
	"github.com/maisondore/newsletter/internal/pkg/logger"
)

// ErrAllSourcesFailed means no selected membership source returned usable
// data, so there is nothing to list from.
var ErrAllSourcesFailed = errors.New("all membership sources failed")

// Source selects which membership stores feed the listing.
type Source string

const (
	// SourceHybrid merges primary and backup. Default.
	SourceHybrid Source = "hybrid"
	// SourceDatabase lists from the primary store only.
	SourceDatabase Source = "database"
	// SourceBackup lists from the backup log only.
	SourceBackup Source = "backup"
)

// ParseSource maps a query value to a Source, defaulting to hybrid.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceDatabase, SourceBackup:
		return Source(s)
	default:
		return SourceHybrid
	}
}

// PrimarySource is the primary store's read side.
type PrimarySource interface {
	List(ctx context.Context, onlyConfirmed bool) ([]domain.Subscriber, error)
}

// BackupSource is the backup log's read side.
type BackupSource interface {
	ListAll(ctx context.Context) ([]domain.BackupEntry, error)
}

// ExclusionSource is the unsubscribe registry's read side.
type ExclusionSource interface {
	ListAll(ctx context.Context) ([]domain.UnsubscribeEntry, error)
}

// Options controls filtering and source selection for a listing.
type Options struct {
	Source              Source
	IncludeUnconfirmed  bool
	IncludeUnsubscribed bool
	NoCache             bool
}

// Stats are the derived counters for a listing. Total always equals the
// length of the returned slice; Confirmed and Pending count only records
// not marked unsubscribed.
type Stats struct {
	Total        int `json:"total"`
	Confirmed    int `json:"confirmed"`
	Pending      int `json:"pending"`
	Unsubscribed int `json:"unsubscribed"`
}

// SourceError records a source that failed during the fetch phase.
type SourceError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Result is a reconciled listing.
type Result struct {
	Subscribers  []domain.Subscriber `json:"subscribers"`
	Stats        Stats               `json:"stats"`
	SourceErrors []SourceError       `json:"source_errors,omitempty"`
	Cached       bool                `json:"cached,omitempty"`
}

// Aggregator computes reconciled listings. Any of the sources may be nil;
// a nil source behaves like an empty one and is skipped without error.
type Aggregator struct {
	primary  PrimarySource
	backup   BackupSource
	registry ExclusionSource
	cache    cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration
}

// NewAggregator wires the three sources and the read cache.
func NewAggregator(primary PrimarySource, bk BackupSource, registry ExclusionSource, c cache.Cache, cacheTTL, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Aggregator{
		primary:  primary,
		backup:   bk,
		registry: registry,
		cache:    c,
		cacheTTL: cacheTTL,
		timeout:  timeout,
	}
}

func cacheKey(opts Options) string {
	return fmt.Sprintf("list:%s:%t:%t", opts.Source, opts.IncludeUnconfirmed, opts.IncludeUnsubscribed)
}

// cachedResult is the cache payload. Source errors are transient and are
// not cached.
type cachedResult struct {
	Subscribers []domain.Subscriber `json:"subscribers"`
	Stats       Stats               `json:"stats"`
}

// List produces the reconciled listing for the given options, reading
// through the cache unless NoCache is set.
func (a *Aggregator) List(ctx context.Context, opts Options) (*Result, error) {
	if opts.Source == "" {
		opts.Source = SourceHybrid
	}

	key := cacheKey(opts)
	if a.cache != nil && !opts.NoCache {
		if raw, ok := a.cache.Get(ctx, key); ok {
			var cr cachedResult
			if err := json.Unmarshal(raw, &cr); err == nil {
				return &Result{Subscribers: cr.Subscribers, Stats: cr.Stats, Cached: true}, nil
			}
			logger.Warn("reconcile: dropping undecodable cache entry", "key", key)
		}
	}

	res, err := a.reconcile(ctx, opts)
	if err != nil {
		return nil, err
	}

	if a.cache != nil && !opts.NoCache {
		if raw, err := json.Marshal(cachedResult{Subscribers: res.Subscribers, Stats: res.Stats}); err == nil {
			a.cache.Set(ctx, key, raw, a.cacheTTL)
		}
	}
	return res, nil
}

type fetchResult struct {
	primary    []domain.Subscriber
	primaryErr error
	backup     []backup.ReducedEntry
	backupErr  error
	excluded   []domain.UnsubscribeEntry
	excludeErr error
}

// fetch runs the per-source reads in parallel, each under its own timeout.
func (a *Aggregator) fetch(ctx context.Context, opts Options) *fetchResult {
	fr := &fetchResult{}
	var wg sync.WaitGroup

	wantPrimary := a.primary != nil && opts.Source != SourceBackup
	wantBackup := a.backup != nil && opts.Source != SourceDatabase

	if wantPrimary {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			fr.primary, fr.primaryErr = a.primary.List(callCtx, false)
		}()
	}
	if wantBackup {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			entries, err := a.backup.ListAll(callCtx)
			if err != nil {
				fr.backupErr = err
				return
			}
			fr.backup = backup.Reduce(entries)
		}()
	}
	if a.registry != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			fr.excluded, fr.excludeErr = a.registry.ListAll(callCtx)
		}()
	}

	wg.Wait()
	return fr
}

func (a *Aggregator) reconcile(ctx context.Context, opts Options) (*Result, error) {
	fr := a.fetch(ctx, opts)

	var sourceErrs []SourceError
	if fr.primaryErr != nil {
		logger.Warn("reconcile: primary store unavailable", "error", fr.primaryErr)
		sourceErrs = append(sourceErrs, SourceError{Source: "primary", Error: fr.primaryErr.Error()})
	}
	if fr.backupErr != nil {
		logger.Warn("reconcile: backup log unavailable", "error", fr.backupErr)
		sourceErrs = append(sourceErrs, SourceError{Source: "backup", Error: fr.backupErr.Error()})
	}
	if fr.excludeErr != nil {
		logger.Warn("reconcile: unsubscribe registry unavailable", "error", fr.excludeErr)
		sourceErrs = append(sourceErrs, SourceError{Source: "registry", Error: fr.excludeErr.Error()})
	}

	primaryUsable := a.primary != nil && opts.Source != SourceBackup && fr.primaryErr == nil
	backupUsable := a.backup != nil && opts.Source != SourceDatabase && fr.backupErr == nil
	if !primaryUsable && !backupUsable {
		return nil, ErrAllSourcesFailed
	}

	merged := make(map[string]*domain.Subscriber)

	for i := range fr.primary {
		s := fr.primary[i]
		email := domain.NormalizeEmail(s.Email)
		s.Email = email
		s.Origin = domain.OriginPrimary
		merged[email] = &s
	}

	for _, b := range fr.backup {
		email := domain.NormalizeEmail(b.Email)
		if existing, ok := merged[email]; ok {
			// Primary wins on conflicting fields, except confirmed,
			// which is OR over both stores.
			if b.Confirmed && !existing.Confirmed {
				existing.Confirmed = true
				if existing.ConfirmedAt == nil {
					existing.ConfirmedAt = b.ConfirmedAt
				}
			}
			continue
		}
		merged[email] = &domain.Subscriber{
			Email:        email,
			SubscribedAt: b.SubscribedAt,
			Confirmed:    b.Confirmed,
			ConfirmedAt:  b.ConfirmedAt,
			Origin:       domain.OriginBackup,
			IPAddress:    b.IP,
			UserAgent:    b.UserAgent,
		}
	}

	excluded := make(map[string]domain.UnsubscribeEntry, len(fr.excluded))
	for _, e := range fr.excluded {
		excluded[domain.NormalizeEmail(e.Email)] = e
	}

	if opts.IncludeUnsubscribed {
		for email, e := range excluded {
			if existing, ok := merged[email]; ok {
				existing.Unsubscribed = true
				at := e.UnsubscribedAt
				existing.UnsubscribedAt = &at
				continue
			}
			// Asked to leave but never tracked as having joined.
			at := e.UnsubscribedAt
			merged[email] = &domain.Subscriber{
				Email:          email,
				SubscribedAt:   e.UnsubscribedAt,
				Origin:         domain.OriginRegistry,
				Unsubscribed:   true,
				UnsubscribedAt: &at,
			}
		}
	} else {
		for email := range excluded {
			delete(merged, email)
		}
	}

	out := make([]domain.Subscriber, 0, len(merged))
	for _, s := range merged {
		if !opts.IncludeUnconfirmed && !s.Confirmed && !s.Unsubscribed {
			continue
		}
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubscribedAt.Equal(out[j].SubscribedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].SubscribedAt.After(out[j].SubscribedAt)
	})

	stats := Stats{Total: len(out)}
	for _, s := range out {
		switch {
		case s.Unsubscribed:
			stats.Unsubscribed++
		case s.Confirmed:
			stats.Confirmed++
		default:
			stats.Pending++
		}
	}

	return &Result{Subscribers: out, Stats: stats, SourceErrors: sourceErrs}, nil
}
