// Package postgres implements the durable repositories of the newsletter
// service against PostgreSQL: the primary subscriber table, the append-only
// backup entry table, the unsubscribe registry table, and the confirmation
// token table.
//
// Repositories return errors; the adapters above them (backup chain,
// unsubscribe registry, token service) decide what a failure means.
package postgres
