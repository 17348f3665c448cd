package tasks

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/likesync/internal/models"
	"github.com/desertthunder/likesync/internal/shared"
)

const (
	DefaultPlaylistName = "Liked Songs Playlist"
	DefaultPageSize     = shared.MaxPageSize
	DefaultBatchSize    = shared.MaxBatchSize
)

// Library is the subset of the music service API a sync run drives.
type Library interface {
	Mutator
	CurrentUserID(ctx context.Context) (string, error)
	CreatePlaylist(ctx context.Context, userID, name string, public bool) (*models.Playlist, error)
	ListPlaylists(ctx context.Context, limit, offset int) ([]models.Playlist, error)
	ListPlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]models.Track, error)
	ListSavedTracks(ctx context.Context, limit, offset int) ([]models.Track, error)
}

// RunRecorder persists [models.SyncRun] records. Implemented by repositories.SyncRunRepository.
type RunRecorder interface {
	Start(run *models.SyncRun) error
	Finish(run *models.SyncRun) error
}

// SyncOptions configures one sync run. Zero sizes fall back to the API maximums.
type SyncOptions struct {
	PlaylistName string
	Clobber      bool
	DryRun       bool
	Public       bool
	PageSize     int
	BatchSize    int
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.PlaylistName == "" {
		o.PlaylistName = DefaultPlaylistName
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// SyncResult summarizes a sync run. For dry runs Added and Removed are the planned counts.
type SyncResult struct {
	RunID         string
	Playlist      models.Playlist
	Mode          models.SyncMode
	Created       bool
	DryRun        bool
	LikedCount    int
	ExistingCount int
	Pending       []models.Track // tracks selected for insertion, oldest first
	Added         int
	Removed       int
	Skipped       int // tracks without an ID, never sent to the API
	InsertCalls   int
	RemoveCalls   int
}

// SyncEngine reconciles the liked-songs collection into a single target playlist.
type SyncEngine struct {
	lib      Library
	recorder RunRecorder
	logger   *log.Logger
}

// NewSyncEngine creates a [SyncEngine]. recorder and logger may be nil.
func NewSyncEngine(lib Library, recorder RunRecorder, logger *log.Logger) *SyncEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &SyncEngine{lib: lib, recorder: recorder, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *SyncEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Sync runs lookup, mode selection, reconciliation, and apply, in that order.
//
// The liked collection is fetched once and reversed to oldest-first, which is the order it takes in the playlist.
// The target is the first playlist whose name equals opts.PlaylistName exactly; it is created when absent. With
// Clobber set and an existing target, every track in it is removed and the full collection is re-added, otherwise
// only liked tracks missing from the target are added. Failures are returned as-is with no rollback, so an error
// during apply can leave the playlist partially updated. A later merge run continues from that state.
func (e *SyncEngine) Sync(ctx context.Context, opts SyncOptions, progress chan<- ProgressUpdate) (result *SyncResult, err error) {
	if e.lib == nil {
		return nil, fmt.Errorf("%w: music library client not initialized", shared.ErrServiceUnavailable)
	}

	opts = opts.withDefaults()
	mutator, err := NewBatchMutator(e.lib, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	if opts.PageSize < 0 {
		return nil, fmt.Errorf("%w: page size must be positive, got %d", shared.ErrInvalidArgument, opts.PageSize)
	}

	run := models.NewSyncRun(opts.PlaylistName, opts.DryRun)
	run.SetID(shared.GenerateID())
	logger := e.logger.With("run", run.ID())
	e.recordStart(logger, run)

	result = &SyncResult{RunID: run.ID(), DryRun: opts.DryRun, Mode: models.ModeMerge}
	defer func() { e.recordFinish(logger, run, result, err) }()

	e.sendProgress(progress, fetchLikedUpdate())
	liked, err := FetchAll(ctx, opts.PageSize, e.lib.ListSavedTracks)
	if err != nil {
		return result, fmt.Errorf("failed to fetch liked songs: %w", err)
	}
	slices.Reverse(liked)
	result.LikedCount = len(liked)
	logger.Debug("fetched liked songs", "count", len(liked))
	e.sendProgress(progress, fetchedLikedUpdate(len(liked)))

	e.sendProgress(progress, lookupPlaylistUpdate(opts.PlaylistName))
	playlist, found, err := e.lookupPlaylist(ctx, opts)
	if err != nil {
		return result, err
	}

	result.Mode = selectMode(found, opts.Clobber)
	logger.Info("selected sync mode", "mode", result.Mode, "playlist", opts.PlaylistName)

	if found {
		e.sendProgress(progress, foundPlaylistUpdate(playlist))
	} else {
		e.sendProgress(progress, createPlaylistUpdate(opts.PlaylistName, opts.DryRun))
		if opts.DryRun {
			playlist = models.Playlist{Name: opts.PlaylistName, Public: opts.Public}
		} else {
			if playlist, err = e.createPlaylist(ctx, logger, opts); err != nil {
				return result, err
			}
			result.Created = true
			e.sendProgress(progress, createdPlaylistUpdate(playlist))
		}
	}
	result.Playlist = playlist

	var existing []models.Track
	if playlist.ID != "" {
		e.sendProgress(progress, fetchTargetUpdate(playlist.Name))
		fetchPage := func(ctx context.Context, limit, offset int) ([]models.Track, error) {
			return e.lib.ListPlaylistTracks(ctx, playlist.ID, limit, offset)
		}
		if existing, err = FetchAll(ctx, opts.PageSize, fetchPage); err != nil {
			return result, fmt.Errorf("failed to fetch playlist tracks: %w", err)
		}
		e.sendProgress(progress, fetchedTargetUpdate(len(existing)))
	}
	result.ExistingCount = len(existing)

	var removeIDs []string
	switch result.Mode {
	case models.ModeClobber:
		var skipped int
		removeIDs, skipped = TrackIDs(existing)
		if skipped > 0 {
			logger.Warn("playlist entries without an id cannot be removed", "count", skipped)
		}
		result.Pending = liked
	default:
		result.Pending = Missing(liked, existing)
	}

	addIDs, skipped := TrackIDs(result.Pending)
	result.Skipped = skipped
	if skipped > 0 {
		logger.Warn("liked songs without an id cannot be added", "count", skipped)
	}

	e.sendProgress(progress, reconcileUpdate(result.Mode, len(addIDs), len(removeIDs)))

	if opts.DryRun {
		result.Added = len(addIDs)
		result.Removed = len(removeIDs)
		e.sendProgress(progress, completeUpdate(result))
		return result, nil
	}

	mutator.OnBatch(func(phase Phase, step, total int) {
		e.sendProgress(progress, batchUpdate(phase, step, total))
	})

	if len(removeIDs) > 0 {
		calls, err := mutator.RemoveAll(ctx, playlist.ID, removeIDs)
		result.RemoveCalls = calls
		result.Removed = min(calls*opts.BatchSize, len(removeIDs))
		if err != nil {
			return result, err
		}
	}

	calls, err := mutator.InsertAtHead(ctx, playlist.ID, addIDs)
	result.InsertCalls = calls
	result.Added = min(calls*opts.BatchSize, len(addIDs))
	if err != nil {
		return result, err
	}

	logger.Info("sync applied", "added", result.Added, "removed", result.Removed, "calls", result.InsertCalls+result.RemoveCalls)
	e.sendProgress(progress, completeUpdate(result))
	return result, nil
}

// selectMode maps the lookup outcome and clobber flag to a [models.SyncMode].
func selectMode(found, clobber bool) models.SyncMode {
	switch {
	case !found:
		return models.ModeCreateThenMerge
	case clobber:
		return models.ModeClobber
	default:
		return models.ModeMerge
	}
}

// lookupPlaylist finds the first playlist named exactly opts.PlaylistName in list order.
func (e *SyncEngine) lookupPlaylist(ctx context.Context, opts SyncOptions) (models.Playlist, bool, error) {
	match := func(pl models.Playlist) bool { return pl.Name == opts.PlaylistName }

	pl, found, err := FindFirst(ctx, opts.PageSize, e.lib.ListPlaylists, match)
	if err != nil {
		return models.Playlist{}, false, fmt.Errorf("failed to look up playlist '%s': %w", opts.PlaylistName, err)
	}
	return pl, found, nil
}

// createPlaylist creates the target for the current user and resolves it again by name.
//
// If the new playlist is not yet visible in the listing, the ID from the create response is used.
func (e *SyncEngine) createPlaylist(ctx context.Context, logger *log.Logger, opts SyncOptions) (models.Playlist, error) {
	userID, err := e.lib.CurrentUserID(ctx)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("failed to get current user: %w", err)
	}

	created, err := e.lib.CreatePlaylist(ctx, userID, opts.PlaylistName, opts.Public)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("failed to create playlist '%s': %w", opts.PlaylistName, err)
	}
	logger.Info("created playlist", "name", opts.PlaylistName, "user", userID)

	pl, found, err := e.lookupPlaylist(ctx, opts)
	if err != nil {
		return models.Playlist{}, err
	}
	if found {
		return pl, nil
	}

	if created == nil || created.ID == "" {
		return models.Playlist{}, fmt.Errorf("%w: '%s' missing after creation", shared.ErrPlaylistNotFound, opts.PlaylistName)
	}
	logger.Warn("created playlist not listed yet, using id from create response", "id", created.ID)
	return *created, nil
}

func (e *SyncEngine) recordStart(logger *log.Logger, run *models.SyncRun) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Start(run); err != nil {
		logger.Warn("failed to record sync run start", "error", err)
	}
}

func (e *SyncEngine) recordFinish(logger *log.Logger, run *models.SyncRun, result *SyncResult, err error) {
	if e.recorder == nil {
		return
	}

	if result != nil {
		run.PlaylistID = result.Playlist.ID
		run.Mode = result.Mode
		run.LikedCount = result.LikedCount
		run.ExistingCount = result.ExistingCount
		run.TracksAdded = result.Added
		run.TracksRemoved = result.Removed
	}
	run.Complete(err)

	if recErr := e.recorder.Finish(run); recErr != nil {
		logger.Warn("failed to record sync run result", "error", recErr)
	}
}
