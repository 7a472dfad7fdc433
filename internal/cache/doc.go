// Package cache provides the short-TTL read cache for reconciled listings.
//
// The cache is a pure accelerator: every entry expires within seconds and
// any write anywhere in the system coarsely invalidates the whole cache.
// Serving stale membership data past the TTL window is never acceptable, so
// invalidation is deliberately blunt rather than per-key.
//
// Two implementations exist: a Redis cache for shared deployments and an
// in-process memory cache used as a fallback when Redis is not configured.
package cache
