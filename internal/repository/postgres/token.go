package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/maisondore/newsletter/internal/domain"
	"github.com/maisondore/newsletter/internal/token"
)

// TokenRepo implements token.Repository against PostgreSQL.
type TokenRepo struct{ db *sql.DB }

// NewTokenRepo creates a Postgres-backed confirmation token repository.
func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

func (r *TokenRepo) Insert(ctx context.Context, tok domain.ConfirmationToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_tokens (token, email, expires_at, used, created_at)
		VALUES ($1, $2, $3, false, $4)
	`, tok.Token, tok.Email, tok.ExpiresAt, tok.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// Redeem marks the token used and returns the bound email in one statement,
// so concurrent redemptions of the same token cannot both succeed.
func (r *TokenRepo) Redeem(ctx context.Context, tokenStr string, now time.Time) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `
		UPDATE newsletter_tokens
		SET used = true, used_at = $2
		WHERE token = $1 AND used = false AND expires_at > $2
		RETURNING email
	`, tokenStr, now).Scan(&email)
	if err == sql.ErrNoRows {
		return "", token.ErrInvalidOrExpired
	}
	if err != nil {
		return "", fmt.Errorf("redeem token: %w", err)
	}
	return email, nil
}

// DeleteExpired removes tokens past expiry. Housekeeping only; expiry is
// enforced at redemption time.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM newsletter_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
