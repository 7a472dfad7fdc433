package subscription

import (
	"context"
	"time"

	"github.com/maisondore/newsletter/internal/cache"
	"github.com/maisondore/newsletter/internal/domain"
	"github.com/maisondore/newsletter/internal/mailer"
	"github.com/maisondore/newsletter/internal/pkg/logger"
)

// PrimaryStore is the authoritative subscriber table. Every call is treated
// as best-effort by this service.
type PrimaryStore interface {
	Insert(ctx context.Context, email, ip, userAgent string) error
	Confirm(ctx context.Context, email string) error
	Exists(ctx context.Context, email string) (exists, confirmed bool, err error)
	Delete(ctx context.Context, email string) error
}

// BackupLog is the durability source of truth for signup facts.
type BackupLog interface {
	Append(ctx context.Context, e domain.BackupEntry) bool
	MarkConfirmed(ctx context.Context, email string) bool
	FindByEmail(ctx context.Context, email string) (exists, confirmed bool, err error)
}

// Tokens issues and redeems single-use confirmation tokens.
type Tokens interface {
	Issue(ctx context.Context, email string) (string, error)
	Redeem(ctx context.Context, token string) (string, error)
}

// Exclusions is the unsubscribe registry's write side.
type Exclusions interface {
	Add(ctx context.Context, email, reason string) error
	Contains(ctx context.Context, email string) bool
}

// Service implements the subscriber lifecycle. Safe for concurrent use.
type Service struct {
	primary        PrimaryStore
	backup         BackupLog
	tokens         Tokens
	exclusions     Exclusions
	cache          cache.Cache
	sender         mailer.Sender
	confirmBaseURL string
}

// NewService wires the lifecycle over its collaborators. primary and sender
// may be nil; the corresponding steps are skipped.
func NewService(primary PrimaryStore, backup BackupLog, tokens Tokens, exclusions Exclusions, c cache.Cache, sender mailer.Sender, confirmBaseURL string) *Service {
	return &Service{
		primary:        primary,
		backup:         backup,
		tokens:         tokens,
		exclusions:     exclusions,
		cache:          c,
		sender:         sender,
		confirmBaseURL: confirmBaseURL,
	}
}

// Subscribe handles a signup request. The backup append is the
// durability-critical write: if it fails on every backend the whole request
// fails. The primary insert is best-effort, and the confirmation email is
// fire-and-forget.
func (s *Service) Subscribe(ctx context.Context, email, ip, userAgent string) error {
	normalized, err := domain.ValidateEmail(email)
	if err != nil {
		return err
	}

	if s.primary != nil {
		exists, confirmed, err := s.primary.Exists(ctx, normalized)
		if err != nil {
			logger.Warn("subscribe: primary existence check failed", "email", normalized, "error", err)
		} else if exists && confirmed {
			return ErrAlreadySubscribed
		}
	}

	// The primary row may be missing or stale (lost insert, degraded store).
	// The backup log holds confirmations too, so consult it before accepting
	// a signup the merged view would treat as already confirmed.
	exists, confirmed, err := s.backup.FindByEmail(ctx, normalized)
	if err != nil {
		logger.Warn("subscribe: backup existence check failed", "email", normalized, "error", err)
	} else if exists && confirmed {
		return ErrAlreadySubscribed
	}

	entry := domain.BackupEntry{
		Email:     normalized,
		Timestamp: time.Now().UTC(),
		Source:    domain.BackupSubscription,
		IP:        ip,
		UserAgent: userAgent,
	}
	if !s.backup.Append(ctx, entry) {
		return ErrAllBackendsFailed
	}

	if s.primary != nil {
		if err := s.primary.Insert(ctx, normalized, ip, userAgent); err != nil {
			logger.Warn("subscribe: primary insert failed", "email", normalized, "error", err)
		}
	}

	tok, err := s.tokens.Issue(ctx, normalized)
	if err != nil {
		logger.Warn("subscribe: token issue failed, confirmation email skipped",
			"email", normalized, "error", err)
	} else if s.sender != nil {
		confirmURL := mailer.ConfirmURL(s.confirmBaseURL, tok)
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.sender.SendConfirmation(sendCtx, normalized, confirmURL); err != nil {
				logger.Warn("subscribe: confirmation email failed", "email", normalized, "error", err)
			}
		}()
	}

	s.invalidate(ctx)
	return nil
}

// Confirm redeems the token and marks the subscriber confirmed in both
// stores. Redemption fails closed; the store updates afterward are
// best-effort because the redemption itself is the authoritative fact.
func (s *Service) Confirm(ctx context.Context, tokenStr string) (string, error) {
	email, err := s.tokens.Redeem(ctx, tokenStr)
	if err != nil {
		return "", err
	}

	if !s.backup.MarkConfirmed(ctx, email) {
		logger.Warn("confirm: backup confirmation append failed", "email", email)
	}
	if s.primary != nil {
		if err := s.primary.Confirm(ctx, email); err != nil {
			logger.Warn("confirm: primary confirm failed", "email", email, "error", err)
		}
	}

	s.invalidate(ctx)
	return email, nil
}

// Unsubscribe records the exclusion and removes the row from the primary
// table. The registry write fails closed; the primary delete is best-effort
// since the registry is the durable record of the fact. Idempotent.
func (s *Service) Unsubscribe(ctx context.Context, email, reason string) error {
	normalized, err := domain.ValidateEmail(email)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = domain.UnsubscribeUserRequest
	}

	if err := s.exclusions.Add(ctx, normalized, reason); err != nil {
		return ErrAllBackendsFailed
	}

	if s.primary != nil {
		if err := s.primary.Delete(ctx, normalized); err != nil {
			logger.Warn("unsubscribe: primary delete failed", "email", normalized, "error", err)
		}
	}

	s.invalidate(ctx)
	return nil
}

// Exists probes every source for the email. Used by clients to pre-validate
// before showing an unsubscribe confirmation.
func (s *Service) Exists(ctx context.Context, email string) bool {
	normalized := domain.NormalizeEmail(email)
	if normalized == "" {
		return false
	}

	if s.exclusions.Contains(ctx, normalized) {
		return true
	}
	if s.primary != nil {
		exists, _, err := s.primary.Exists(ctx, normalized)
		if err != nil {
			logger.Warn("exists: primary lookup failed", "email", normalized, "error", err)
		} else if exists {
			return true
		}
	}
	exists, _, err := s.backup.FindByEmail(ctx, normalized)
	if err != nil {
		logger.Warn("exists: backup lookup failed", "email", normalized, "error", err)
		return false
	}
	return exists
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateAll(ctx)
	}
}
