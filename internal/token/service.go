package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maisondore/newsletter/internal/domain"
	"github.com/maisondore/newsletter/internal/pkg/logger"
)

// ErrInvalidOrExpired is returned when a token is absent, already used, or
// past its expiry. Callers cannot distinguish the three cases; that is
// deliberate (no oracle for probing token validity).
var ErrInvalidOrExpired = errors.New("token invalid or expired")

// Repository is the durable store contract for confirmation tokens.
type Repository interface {
	// Insert persists a freshly issued token.
	Insert(ctx context.Context, tok domain.ConfirmationToken) error

	// Redeem atomically marks the token used and returns the bound email.
	// Returns ErrInvalidOrExpired for missing/used/expired tokens and a
	// different error when the store itself is unreachable.
	Redeem(ctx context.Context, token string, now time.Time) (string, error)
}

// Service issues and redeems confirmation tokens. Safe for concurrent use.
type Service struct {
	repo Repository
	ttl  time.Duration

	mu       sync.Mutex
	fallback map[string]domain.ConfirmationToken
}

// NewService creates a token service with the given durable repository.
// repo may be nil; the service then runs entirely on the in-process store.
func NewService(repo Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		repo:     repo,
		ttl:      ttl,
		fallback: make(map[string]domain.ConfirmationToken),
	}
}

// Issue generates a cryptographically random token bound to the email and
// persists it. Durable-store failure degrades to the in-process fallback;
// issuing never fails for store unavailability.
func (s *Service) Issue(ctx context.Context, email string) (string, error) {
	raw := make([]byte, 32) // 256 bits of entropy
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	now := time.Now().UTC()
	tok := domain.ConfirmationToken{
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		Email:     domain.NormalizeEmail(email),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if s.repo != nil {
		if err := s.repo.Insert(ctx, tok); err == nil {
			return tok.Token, nil
		} else {
			logger.Warn("token: durable insert failed, using in-process fallback",
				"email", tok.Email, "error", err)
		}
	}

	s.mu.Lock()
	s.fallback[tok.Token] = tok
	s.mu.Unlock()
	return tok.Token, nil
}

// Redeem marks the token used and returns the bound email. Fails closed: a
// durable-store outage is an error, not a silent success, because redemption
// gates subscriber state changes.
func (s *Service) Redeem(ctx context.Context, token string) (string, error) {
	now := time.Now().UTC()

	// Tokens issued while the durable store was down live only here.
	s.mu.Lock()
	if tok, ok := s.fallback[token]; ok {
		if tok.Used || tok.Expired(now) {
			s.mu.Unlock()
			return "", ErrInvalidOrExpired
		}
		tok.Used = true
		tok.UsedAt = &now
		s.fallback[token] = tok
		s.mu.Unlock()
		return tok.Email, nil
	}
	s.mu.Unlock()

	if s.repo == nil {
		return "", ErrInvalidOrExpired
	}

	email, err := s.repo.Redeem(ctx, token, now)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpired) {
			return "", ErrInvalidOrExpired
		}
		return "", fmt.Errorf("token store unavailable: %w", err)
	}
	return email, nil
}

// StartSweeper runs periodic eviction of expired and used fallback entries
// until ctx is cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.sweep(time.Now().UTC()); n > 0 {
					logger.Debug("token: swept fallback entries", "evicted", n)
				}
			}
		}
	}()
}

func (s *Service) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for k, tok := range s.fallback {
		if tok.Used || tok.Expired(now) {
			delete(s.fallback, k)
			evicted++
		}
	}
	return evicted
}

// FallbackSize reports the current in-process store size. Exposed for the
// health endpoint.
func (s *Service) FallbackSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fallback)
}
