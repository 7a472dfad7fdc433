package cache

import (
	"context"
	"time"
)

// Cache is the read-cache contract. Implementations must treat every
// operation as best-effort: a miss and a backend failure look the same to
// readers, and a failed Set is silently dropped.
type Cache interface {
	// Get returns the cached value and whether it was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores the value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// InvalidateAll drops every entry. Coarse by design: any subscriber
	// mutation invalidates all cached listings.
	InvalidateAll(ctx context.Context)
}
