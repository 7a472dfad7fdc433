package domain

import "time"

// ConfirmationToken binds an opaque random token string to one email address.
// A token may be redeemed at most once and only before expiry; redemption is
// terminal.
type ConfirmationToken struct {
	Token     string     `json:"token" db:"token"`
	Email     string     `json:"email" db:"email"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	Used      bool       `json:"used" db:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t ConfirmationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
