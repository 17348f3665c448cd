package tasks

import (
	"fmt"

	"github.com/desertthunder/likesync/internal/models"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchLiked Phase = iota
	LookupPlaylist
	CreatePlaylist
	FetchTarget
	Reconcile
	RemoveTracks
	InsertTracks
	Complete
)

func (p Phase) String() string {
	switch p {
	case FetchLiked:
		return "fetch_liked"
	case LookupPlaylist:
		return "lookup_playlist"
	case CreatePlaylist:
		return "create_playlist"
	case FetchTarget:
		return "fetch_target"
	case Reconcile:
		return "reconcile"
	case RemoveTracks:
		return "remove_tracks"
	case InsertTracks:
		return "insert_tracks"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func fetchLikedUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: FetchLiked, Step: 0, Total: 1, Message: "Fetching liked songs..."}
}

func fetchedLikedUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLiked,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetched %d liked songs", count),
	}
}

func lookupPlaylistUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LookupPlaylist,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Looking up playlist '%s'...", name),
	}
}

func foundPlaylistUpdate(pl models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LookupPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found playlist: %s (ID: %s)", pl.Name, pl.ID),
		Data:    pl,
	}
}

func createPlaylistUpdate(name string, dryRun bool) ProgressUpdate {
	msg := fmt.Sprintf("Creating playlist '%s'...", name)
	if dryRun {
		msg = fmt.Sprintf("Playlist '%s' does not exist and would be created", name)
	}
	return ProgressUpdate{Phase: CreatePlaylist, Step: 0, Total: 1, Message: msg}
}

func createdPlaylistUpdate(pl models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Playlist created: %s (ID: %s)", pl.Name, pl.ID),
		Data:    pl,
	}
}

func fetchTargetUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTarget,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Fetching tracks in '%s'...", name),
	}
}

func fetchedTargetUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTarget,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Playlist has %d tracks", count),
	}
}

func reconcileUpdate(mode models.SyncMode, adds, removes int) ProgressUpdate {
	var msg string
	switch mode {
	case models.ModeClobber:
		msg = fmt.Sprintf("Clobbering: removing %d tracks, adding %d", removes, adds)
	default:
		msg = fmt.Sprintf("%d liked songs missing from playlist", adds)
	}
	return ProgressUpdate{Phase: Reconcile, Step: 1, Total: 1, Message: msg, Data: mode}
}

func batchUpdate(phase Phase, step, total int) ProgressUpdate {
	verb := "Adding"
	if phase == RemoveTracks {
		verb = "Removing"
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s tracks...", step, total, verb),
	}
}

func completeUpdate(result *SyncResult) ProgressUpdate {
	msg := fmt.Sprintf("✓ Added %d, removed %d", result.Added, result.Removed)
	if result.DryRun {
		msg = fmt.Sprintf("Dry run: would add %d, remove %d", result.Added, result.Removed)
	}
	return ProgressUpdate{Phase: Complete, Step: 1, Total: 1, Message: msg, Data: result}
}
