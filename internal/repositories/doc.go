// Package repositories implements SQLite persistence for sync history.
//
// [SyncRunRepository] stores one row per sync run: target playlist, selected mode, outcome, and counts.
// Track metadata is never persisted. Deleted runs are soft-deleted via deleted_at and excluded from queries.
//
// Sequence numbers provide stable, human-readable ordering (run #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function increments per-table counters in dedicated sequence tables.
package repositories
