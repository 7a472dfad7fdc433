package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/maisondore/newsletter/internal/domain"
)

// UnsubscribeRepo is the durable backend of the unsubscribe registry.
type UnsubscribeRepo struct{ db *sql.DB }

// NewUnsubscribeRepo creates a Postgres-backed unsubscribe repository.
func NewUnsubscribeRepo(db *sql.DB) *UnsubscribeRepo { return &UnsubscribeRepo{db: db} }

// Add upserts an exclusion keyed by normalized email. Last reason wins; the
// original unsubscribed_at is preserved so re-unsubscribing does not move the
// exclusion forward in time.
func (r *UnsubscribeRepo) Add(ctx context.Context, e domain.UnsubscribeEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_unsubscribes (id, email, unsubscribed_at, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET reason = $4
	`, uuid.New().String(), domain.NormalizeEmail(e.Email), e.UnsubscribedAt, e.Reason)
	if err != nil {
		return fmt.Errorf("add unsubscribe: %w", err)
	}
	return nil
}

// Contains reports whether the email is excluded.
func (r *UnsubscribeRepo) Contains(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM newsletter_unsubscribes WHERE email = $1)`,
		domain.NormalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("unsubscribe contains: %w", err)
	}
	return exists, nil
}

// ListAll returns every exclusion, most recent first.
func (r *UnsubscribeRepo) ListAll(ctx context.Context) ([]domain.UnsubscribeEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email, unsubscribed_at, reason
		FROM newsletter_unsubscribes
		ORDER BY unsubscribed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list unsubscribes: %w", err)
	}
	defer rows.Close()

	var out []domain.UnsubscribeEntry
	for rows.Next() {
		var e domain.UnsubscribeEntry
		var reason sql.NullString
		if err := rows.Scan(&e.Email, &e.UnsubscribedAt, &reason); err != nil {
			return nil, fmt.Errorf("scan unsubscribe: %w", err)
		}
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, rows.Err()
}
