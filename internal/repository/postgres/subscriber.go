package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/maisondore/newsletter/internal/domain"
)

// SubscriberRepo is the primary store adapter: CRUD over the authoritative
// newsletter_subscribers table.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

// Insert adds a new unconfirmed subscriber row. Inserting an email that
// already has a row is a no-op success; the earlier row wins.
func (r *SubscriberRepo) Insert(ctx context.Context, email, ip, userAgent string) error {
	email = domain.NormalizeEmail(email)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_subscribers (id, email, subscribed_at, confirmed, ip_address, user_agent)
		VALUES ($1, $2, NOW(), false, $3, $4)
		ON CONFLICT (email) DO NOTHING
	`, uuid.New().String(), email, ip, userAgent)
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

// Confirm sets confirmed=true for the matching row. No-op success when the
// row is already confirmed or absent.
func (r *SubscriberRepo) Confirm(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE newsletter_subscribers
		SET confirmed = true, confirmed_at = COALESCE(confirmed_at, NOW())
		WHERE email = $1
	`, domain.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("confirm subscriber: %w", err)
	}
	return nil
}

// List returns subscriber rows, optionally only confirmed ones, ordered by
// subscribed_at descending.
func (r *SubscriberRepo) List(ctx context.Context, onlyConfirmed bool) ([]domain.Subscriber, error) {
	query := `
		SELECT email, subscribed_at, confirmed, confirmed_at, ip_address, user_agent
		FROM newsletter_subscribers
	`
	if onlyConfirmed {
		query += ` WHERE confirmed = true`
	}
	query += ` ORDER BY subscribed_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		var s domain.Subscriber
		var confirmedAt sql.NullTime
		var ip, ua sql.NullString
		if err := rows.Scan(&s.Email, &s.SubscribedAt, &s.Confirmed, &confirmedAt, &ip, &ua); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		if confirmedAt.Valid {
			t := confirmedAt.Time
			s.ConfirmedAt = &t
		}
		s.IPAddress = ip.String
		s.UserAgent = ua.String
		s.Origin = domain.OriginPrimary
		out = append(out, s)
	}
	return out, rows.Err()
}

// Exists reports whether a row exists for the email and whether it is
// confirmed.
func (r *SubscriberRepo) Exists(ctx context.Context, email string) (exists, confirmed bool, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT confirmed FROM newsletter_subscribers WHERE email = $1
	`, domain.NormalizeEmail(email)).Scan(&confirmed)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("subscriber exists: %w", err)
	}
	return true, confirmed, nil
}

// Delete removes the subscriber row. Used only by the unsubscribe flow; the
// unsubscribe registry is the durable record of the fact.
func (r *SubscriberRepo) Delete(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM newsletter_subscribers WHERE email = $1`,
		domain.NormalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	return nil
}
