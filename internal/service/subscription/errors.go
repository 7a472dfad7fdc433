package subscription

import "errors"

// Sentinel errors for the subscription service layer.
var (
	// ErrAlreadySubscribed means the email is already present and confirmed.
	ErrAlreadySubscribed = errors.New("email is already subscribed and confirmed")
	// ErrAllBackendsFailed means a durability-critical write failed everywhere.
	ErrAllBackendsFailed = errors.New("all backends failed for durability-critical write")
)
