package backup

import (
	"context"
	"sort"
	"time"

	"github.com/maisondore/newsletter/internal/domain"
	"github.com/maisondore/newsletter/internal/pkg/logger"
)

// Log is the backup event log: an ordered chain of backends tried in
// priority order with a uniform per-call timeout.
type Log struct {
	backends []Backend
	timeout  time.Duration
}

// NewLog creates a log over the given backends, highest priority first.
func NewLog(timeout time.Duration, backends ...Backend) *Log {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Log{backends: backends, timeout: timeout}
}

func confirmationEntry(email string) domain.BackupEntry {
	return domain.BackupEntry{
		Email:     domain.NormalizeEmail(email),
		Timestamp: time.Now().UTC(),
		Confirmed: true,
		Source:    domain.BackupConfirmation,
	}
}

// Append records an event on the first backend that accepts it. Returns false
// when every backend refused; the entry is then logged at CRITICAL severity,
// unredacted, so it is recoverable from the log stream. Never panics or
// returns an error for "store temporarily unavailable".
func (l *Log) Append(ctx context.Context, e domain.BackupEntry) bool {
	e.Email = domain.NormalizeEmail(e.Email)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	for _, b := range l.backends {
		callCtx, cancel := context.WithTimeout(ctx, l.timeout)
		err := b.Append(callCtx, e)
		cancel()
		if err == nil {
			return true
		}
		logger.Warn("backup: append failed, trying next backend",
			"backend", b.Name(), "email", e.Email, "error", err)
	}

	logger.Critical("backup: entry lost, all backends failed",
		"email", e.Email,
		"timestamp", e.Timestamp.Format(time.RFC3339),
		"confirmed", e.Confirmed,
		"source", string(e.Source))
	return false
}

// ListAll returns all recorded events, most-recent-first, from the first
// reachable backend.
func (l *Log) ListAll(ctx context.Context) ([]domain.BackupEntry, error) {
	var lastErr error
	for _, b := range l.backends {
		callCtx, cancel := context.WithTimeout(ctx, l.timeout)
		entries, err := b.List(callCtx)
		cancel()
		if err == nil {
			return entries, nil
		}
		lastErr = err
		logger.Warn("backup: list failed, trying next backend",
			"backend", b.Name(), "error", err)
	}
	return nil, lastErr
}

// MarkConfirmed records a confirmation event for the email. Same failure
// semantics as Append.
func (l *Log) MarkConfirmed(ctx context.Context, email string) bool {
	email = domain.NormalizeEmail(email)

	for _, b := range l.backends {
		callCtx, cancel := context.WithTimeout(ctx, l.timeout)
		err := b.MarkConfirmed(callCtx, email)
		cancel()
		if err == nil {
			return true
		}
		logger.Warn("backup: mark confirmed failed, trying next backend",
			"backend", b.Name(), "email", email, "error", err)
	}

	logger.Critical("backup: confirmation lost, all backends failed", "email", email)
	return false
}

// FindByEmail folds all entries for one normalized email into an
// exists/confirmed summary. Confirmed if ANY entry is confirmed.
func (l *Log) FindByEmail(ctx context.Context, email string) (exists, confirmed bool, err error) {
	email = domain.NormalizeEmail(email)
	entries, err := l.ListAll(ctx)
	if err != nil {
		return false, false, err
	}
	for _, e := range entries {
		if domain.NormalizeEmail(e.Email) != email {
			continue
		}
		exists = true
		if e.Confirmed {
			confirmed = true
		}
	}
	return exists, confirmed, nil
}

// ReducedEntry is the per-email summary of the event log.
type ReducedEntry struct {
	Email        string
	SubscribedAt time.Time  // earliest timestamp seen
	Confirmed    bool       // OR over all entries
	ConfirmedAt  *time.Time // latest confirmed entry's timestamp
	IP           string
	UserAgent    string
}

// Reduce folds raw entries into one summary per normalized email, ordered by
// SubscribedAt descending. Confirmation is monotonic: one confirmed entry
// makes the summary confirmed regardless of later unconfirmed events.
func Reduce(entries []domain.BackupEntry) []ReducedEntry {
	byEmail := make(map[string]*ReducedEntry)
	for _, e := range entries {
		email := domain.NormalizeEmail(e.Email)
		r, ok := byEmail[email]
		if !ok {
			r = &ReducedEntry{Email: email, SubscribedAt: e.Timestamp}
			byEmail[email] = r
		}
		if e.Timestamp.Before(r.SubscribedAt) {
			r.SubscribedAt = e.Timestamp
		}
		if e.Confirmed {
			r.Confirmed = true
			if r.ConfirmedAt == nil || e.Timestamp.After(*r.ConfirmedAt) {
				ts := e.Timestamp
				r.ConfirmedAt = &ts
			}
		}
		if r.IP == "" {
			r.IP = e.IP
		}
		if r.UserAgent == "" {
			r.UserAgent = e.UserAgent
		}
	}

	out := make([]ReducedEntry, 0, len(byEmail))
	for _, r := range byEmail {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubscribedAt.After(out[j].SubscribedAt)
	})
	return out
}
