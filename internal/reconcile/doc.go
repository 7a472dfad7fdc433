// Package reconcile merges the primary store, the backup log, and the
// unsubscribe registry into one canonical view of who is subscribed.
//
// The three sources are independently writable and independently fallible,
// so the aggregator fetches them in parallel with bounded timeouts, merges
// by normalized email with deterministic precedence rules, and degrades to
// partial data when a source is down. Per-source failures are reported in
// the result rather than swallowed, and the whole listing fails only when
// no membership source returned usable data.
package reconcile
