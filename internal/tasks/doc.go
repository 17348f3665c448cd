// Package tasks mirrors the liked-songs collection into a single named playlist with real-time progress reporting.
//
// # Building Blocks
//
//  1. [FetchAll] and [FindFirst] : offset paging over any collection endpoint
//     - Requests pages of a fixed size until one comes back empty
//     - The API's total counter is never trusted
//
//  2. [Missing] and [TrackIDs] : reconciliation by composite identity
//     - Tracks compare by name, artists, and duration, never by ID
//     - Tracks without an ID are counted and left out of every mutation
//
//  3. [BatchMutator] : chunked playlist writes
//     - [BatchMutator.InsertAtHead] puts a sequence at the top of the playlist in exactly the given order
//     - [BatchMutator.RemoveAll] removes every occurrence of each ID
//
// # Sync Flow
//
// [SyncEngine.Sync] fetches the liked collection, looks up the target playlist by exact name, and picks a mode:
//
//   - create_then_merge : the playlist does not exist, so it is created and then merged into
//   - clobber           : the playlist exists and clobber is set; all of its tracks are replaced
//   - merge             : the playlist exists; liked songs it is missing are added at the top
//
// Dry runs stop after reconciliation and report the planned counts without creating or mutating anything.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Run History
//
// The optional [RunRecorder] interface persists a record of each run (repositories.SyncRunRepository).
// Recorder errors are logged and never fail a sync.
package tasks
