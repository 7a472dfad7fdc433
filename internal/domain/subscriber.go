package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// RecordOrigin indicates which store a merged subscriber record came from.
type RecordOrigin string

const (
	// OriginPrimary marks records backed by a row in the primary store.
	OriginPrimary RecordOrigin = "primary"
	// OriginBackup marks records reconstructed from the backup log only.
	OriginBackup RecordOrigin = "backup"
	// OriginRegistry marks pseudo-records synthesized from the unsubscribe
	// registry for emails that never subscribed through primary or backup.
	OriginRegistry RecordOrigin = "registry"
)

// Subscriber is one logical newsletter member. The merged view guarantees at
// most one Subscriber per normalized email, even though multiple physical rows
// may exist across stores.
type Subscriber struct {
	Email          string       `json:"email" db:"email"`
	SubscribedAt   time.Time    `json:"subscribed_at" db:"subscribed_at"`
	Confirmed      bool         `json:"confirmed" db:"confirmed"`
	ConfirmedAt    *time.Time   `json:"confirmed_at,omitempty" db:"confirmed_at"`
	Origin         RecordOrigin `json:"source"`
	Unsubscribed   bool         `json:"unsubscribed,omitempty"`
	UnsubscribedAt *time.Time   `json:"unsubscribed_at,omitempty"`

	// Provenance only — never used for dedup or merge decisions.
	IPAddress string `json:"-" db:"ip_address"`
	UserAgent string `json:"-" db:"user_agent"`
}

// ErrInvalidEmail is returned for emails that fail syntactic validation.
// Validation rejects before any side effect occurs.
var ErrInvalidEmail = errors.New("invalid email address")

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail lowercases and trims an email address. The normalized form is
// the dedup key everywhere in the service.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes the address and checks it is syntactically
// plausible. Returns the normalized form.
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" || len(normalized) > 254 || !emailPattern.MatchString(normalized) {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}
