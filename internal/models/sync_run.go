package models

import (
	"errors"
	"fmt"
	"time"
)

// SyncMode is the strategy selected for a sync run once the target playlist has been looked up.
type SyncMode string

const (
	ModeMerge           SyncMode = "merge"             // add liked tracks missing from the playlist
	ModeClobber         SyncMode = "clobber"           // empty the playlist, then add every liked track
	ModeCreateThenMerge SyncMode = "create_then_merge" // playlist did not exist
)

// Valid reports whether m is a known mode.
func (m SyncMode) Valid() bool {
	switch m {
	case ModeMerge, ModeClobber, ModeCreateThenMerge:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a [SyncRun].
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

var errInvalidSyncRun = errors.New("invalid sync run")

// SyncRun is the persisted record of one sync invocation. It holds counts and outcome only, never track metadata.
type SyncRun struct {
	id        string
	sequence  int
	createdAt time.Time
	updatedAt time.Time

	PlaylistName  string
	PlaylistID    string
	Mode          SyncMode
	Status        RunStatus
	DryRun        bool
	LikedCount    int
	ExistingCount int
	TracksAdded   int
	TracksRemoved int
	ErrorMessage  string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// NewSyncRun creates a running [SyncRun] for the named playlist.
func NewSyncRun(playlistName string, dryRun bool) *SyncRun {
	now := time.Now()
	return &SyncRun{
		createdAt:    now,
		updatedAt:    now,
		PlaylistName: playlistName,
		Mode:         ModeMerge,
		Status:       RunStatusRunning,
		DryRun:       dryRun,
		StartedAt:    now,
	}
}

// RestoreSyncRun rebuilds the identity fields of a run loaded from storage.
func RestoreSyncRun(id string, sequence int, createdAt, updatedAt time.Time) *SyncRun {
	return &SyncRun{id: id, sequence: sequence, createdAt: createdAt, updatedAt: updatedAt}
}

func (r *SyncRun) ID() string { return r.id }
func (r *SyncRun) Sequence() int { return r.sequence }
func (r *SyncRun) CreatedAt() time.Time { return r.createdAt }
func (r *SyncRun) UpdatedAt() time.Time { return r.updatedAt }
func (r *SyncRun) SetID(id string) { r.id = id }
func (r *SyncRun) SetSequence(seq int) { r.sequence = seq }
func (r *SyncRun) SetUpdatedAt(ts time.Time) { r.updatedAt = ts }

// Complete marks the run finished, failed when err is non-nil.
func (r *SyncRun) Complete(err error) {
	now := time.Now()
	r.CompletedAt = &now
	r.updatedAt = now
	if err != nil {
		r.Status = RunStatusFailed
		r.ErrorMessage = err.Error()
		return
	}
	r.Status = RunStatusCompleted
}

// Duration is the wall time of a completed run, or zero while it is running.
func (r *SyncRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Validate checks required fields and counters.
func (r *SyncRun) Validate() error {
	if r.id == "" {
		return fmt.Errorf("%w: id is required", errInvalidSyncRun)
	}
	if r.PlaylistName == "" {
		return fmt.Errorf("%w: playlist name is required", errInvalidSyncRun)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", errInvalidSyncRun, r.Mode)
	}
	switch r.Status {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", errInvalidSyncRun, r.Status)
	}
	if r.LikedCount < 0 || r.ExistingCount < 0 || r.TracksAdded < 0 || r.TracksRemoved < 0 {
		return fmt.Errorf("%w: counts cannot be negative", errInvalidSyncRun)
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("%w: started_at is required", errInvalidSyncRun)
	}
	return nil
}

var _ Model = (*SyncRun)(nil)
