// Package store persists tasks, votes, and notification rows in SQLite and
// exposes the write primitives the approval engine builds on.
//
// The Store manages database connections, schema initialization, and the two
// primitives that make concurrent voting safe: grow-only vote inserts
// (set-union semantics, no read-modify-write) and compare-and-swap status
// transitions guarded on the previously observed status. Notification rows are
// derived projections: direct notifications are last-writer-wins overwrites,
// group notifications are written once and never mutated.
//
// Read paths page by identifier in descending order; the page token is the
// last identifier seen, so sequences are restartable. Treat this package as
// the single source of truth for row layout; schema changes add a migration
// under migrations/.
package store
