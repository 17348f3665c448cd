// Package ui implements an interactive sync view using bubbletea's Elm architecture.
//
// The [Model] runs a single sync in the background and renders its progress: a spinner with the
// current phase message, a progress bar while tracks are removed or inserted in batches, and a
// summary once the run finishes. Progress updates flow through a channel from the sync engine.
//
// Quitting with q or ctrl+c cancels the run's context.
package ui
