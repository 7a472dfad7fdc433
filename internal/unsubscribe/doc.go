// Package unsubscribe implements the exclusion registry: the authoritative
// record of emails that must be excluded from every membership view.
//
// The registry pairs a durable repository (Postgres) with a volatile
// in-process mirror. Writes land in the mirror first so an exclusion observed
// in this process lifetime is never forgotten during a store outage; a
// background sync loop flushes pending writes to the durable store and
// refreshes the mirror from it. Entries are monotonic: once present, an
// exclusion is never removed by this package.
package unsubscribe
