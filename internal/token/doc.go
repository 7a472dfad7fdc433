// Package token issues and redeems single-use, time-limited confirmation
// tokens binding a token string to an email address.
//
// Tokens are persisted through the Repository interface (Postgres in
// production). When the durable store is unavailable at issue time the token
// is kept in an in-process fallback map so the signup still completes; a
// periodic sweeper evicts expired fallback entries to bound memory.
//
// Redemption is terminal: repeat calls after a successful redemption return
// ErrInvalidOrExpired, never a second success.
package token
