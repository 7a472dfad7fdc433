package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/maisondore/newsletter/internal/domain"
)

// BackupRepo is the highest-priority backend of the backup log chain: an
// append-only newsletter_backup_entries table.
type BackupRepo struct{ db *sql.DB }

// NewBackupRepo creates a Postgres-backed backup log backend.
func NewBackupRepo(db *sql.DB) *BackupRepo { return &BackupRepo{db: db} }

func (r *BackupRepo) Name() string { return "postgres" }

func (r *BackupRepo) Append(ctx context.Context, e domain.BackupEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_backup_entries (id, email, recorded_at, confirmed, source, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New().String(), domain.NormalizeEmail(e.Email), e.Timestamp, e.Confirmed, e.Source, e.IP, e.UserAgent)
	if err != nil {
		return fmt.Errorf("append backup entry: %w", err)
	}
	return nil
}

func (r *BackupRepo) List(ctx context.Context) ([]domain.BackupEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email, recorded_at, confirmed, source, ip_address, user_agent
		FROM newsletter_backup_entries
		ORDER BY recorded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list backup entries: %w", err)
	}
	defer rows.Close()

	var out []domain.BackupEntry
	for rows.Next() {
		var e domain.BackupEntry
		var ip, ua sql.NullString
		if err := rows.Scan(&e.Email, &e.Timestamp, &e.Confirmed, &e.Source, &ip, &ua); err != nil {
			return nil, fmt.Errorf("scan backup entry: %w", err)
		}
		e.IP = ip.String
		e.UserAgent = ua.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkConfirmed appends a confirmation event and, since Postgres supports
// read-modify-write, also flips the confirmed flag on the email's most
// recent subscription entry.
func (r *BackupRepo) MarkConfirmed(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_backup_entries (id, email, recorded_at, confirmed, source)
		VALUES ($1, $2, NOW(), true, $3)
	`, uuid.New().String(), email, domain.BackupConfirmation)
	if err != nil {
		return fmt.Errorf("append confirmation entry: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE newsletter_backup_entries
		SET confirmed = true
		WHERE id = (
			SELECT id FROM newsletter_backup_entries
			WHERE email = $1 AND source = $2
			ORDER BY recorded_at DESC
			LIMIT 1
		)
	`, email, domain.BackupSubscription)
	if err != nil {
		return fmt.Errorf("update latest backup entry: %w", err)
	}
	return nil
}
