// Package backup implements the append-only subscription event log, the
// durability source of truth for signups and confirmations.
//
// The log writes through an ordered chain of backends (Postgres, then a local
// append-only file, then process memory) with a uniform per-call timeout.
// Appends report success as soon as one backend accepts the entry; when every
// backend refuses, the entry is logged at CRITICAL severity so the fact is
// never silently lost. Reads come from the first reachable backend.
package backup
