package domain

import "time"

// Common unsubscribe reasons. The reason field is a free-form tag; these are
// the values the service itself writes.
const (
	UnsubscribeUserRequest = "user_request"
	UnsubscribeManual      = "manual"
)

// UnsubscribeEntry records that an email must be excluded from all membership
// views. Presence of an entry overrides any subscriber or backup state;
// exclusion is absolute and never expires automatically.
type UnsubscribeEntry struct {
	Email          string    `json:"email" db:"email"`
	UnsubscribedAt time.Time `json:"unsubscribed_at" db:"unsubscribed_at"`
	Reason         string    `json:"reason" db:"reason"`
}
