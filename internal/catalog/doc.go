// Package catalog persists the library: items, their source files and cached
// derivatives, per-item processing state with worker leases, the append-only
// processing log, and the review queue. Storage is a single SQLite database.
//
// All timestamps are stored as RFC 3339 UTC text. Uniqueness races (duplicate
// content hashes, concurrent derivative production, double review escalation)
// surface as ErrConflict so callers can yield to the winning row.
package catalog
