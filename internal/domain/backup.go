package domain

import "time"

// BackupSource indicates which lifecycle event produced a backup entry.
type BackupSource string

const (
	BackupSubscription BackupSource = "subscription"
	BackupConfirmation BackupSource = "confirmation"
)

// BackupEntry is one append-only event in the backup log. Multiple entries per
// email are expected, one per lifecycle event; readers reduce them to the most
// confirmed, most recent state.
type BackupEntry struct {
	Email     string       `json:"email" db:"email"`
	Timestamp time.Time    `json:"timestamp" db:"recorded_at"`
	Confirmed bool         `json:"confirmed" db:"confirmed"`
	Source    BackupSource `json:"source" db:"source"`
	IP        string       `json:"ip,omitempty" db:"ip_address"`
	UserAgent string       `json:"user_agent,omitempty" db:"user_agent"`
}
