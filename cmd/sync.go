package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/likesync/internal/repositories"
	"github.com/desertthunder/likesync/internal/shared"
	"github.com/desertthunder/likesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync reconciles the liked-songs collection into the named playlist.
//
// When the access token has expired and cannot be refreshed, the browser flow is run and the whole sync is retried once.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}
	if !r.config.Credentials.Spotify.HasToken() {
		return fmt.Errorf("%w: run 'likesync auth' first", shared.ErrNotAuthenticated)
	}

	opts := r.syncOptions(cmd)

	if cmd.Bool("interactive") {
		if err := r.useFileLogger(); err != nil {
			return err
		}
	}

	recorder, closeDB := r.openRecorder()
	defer closeDB()

	engine := tasks.NewSyncEngine(r.spotify, recorder, r.logger)
	run := func() (*tasks.SyncResult, error) { return r.runSync(ctx, engine, opts) }
	if cmd.Bool("interactive") {
		run = func() (*tasks.SyncResult, error) { return r.runInteractive(ctx, engine, opts) }
	}

	r.logger.Info("starting sync", "playlist", opts.PlaylistName, "clobber", opts.Clobber, "dry_run", opts.DryRun)

	result, err := r.withReauth(ctx, run)
	if err != nil {
		return err
	}

	if cmd.Bool("interactive") {
		return nil
	}
	return r.printResult(result)
}

// syncOptions merges the [sync] config section with flags, flags taking precedence.
func (r *Runner) syncOptions(cmd *cli.Command) tasks.SyncOptions {
	opts := tasks.SyncOptions{
		PlaylistName: r.config.Sync.PlaylistName,
		Public:       r.config.Sync.Public,
		PageSize:     r.config.Sync.PageSize,
		BatchSize:    r.config.Sync.BatchSize,
		Clobber:      cmd.Bool("clobber"),
		DryRun:       cmd.Bool("dry-run"),
	}
	if cmd.IsSet("name") || opts.PlaylistName == "" {
		opts.PlaylistName = cmd.String("name")
	}
	if cmd.IsSet("public") {
		opts.Public = cmd.Bool("public")
	}
	return opts
}

// withReauth calls run, and once more after reauthorizing when it failed with an expired token.
func (r *Runner) withReauth(ctx context.Context, run func() (*tasks.SyncResult, error)) (*tasks.SyncResult, error) {
	result, err := run()
	reauthed, authErr := r.handleSpotifyAuthError(ctx, err)
	if !reauthed {
		return result, err
	}
	if authErr != nil {
		return nil, authErr
	}
	return run()
}

// openRecorder opens the history database. History is optional: on failure the sync runs unrecorded.
func (r *Runner) openRecorder() (tasks.RunRecorder, func()) {
	db, err := shared.OpenHistoryDatabase(r.config.Database)
	if err != nil {
		r.logger.Warn("sync history disabled", "path", r.config.Database.Path, "error", err)
		return nil, func() {}
	}
	return repositories.NewSyncRunRepository(db), func() { closeDatabase(r, db) }
}

func closeDatabase(r *Runner, db *sql.DB) {
	if err := db.Close(); err != nil {
		r.logger.Warn("failed to close history database", "error", err)
	}
}

// runSync runs one sync, printing each progress message as it arrives.
func (r *Runner) runSync(ctx context.Context, engine *tasks.SyncEngine, opts tasks.SyncOptions) (*tasks.SyncResult, error) {
	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Debug("progress", "phase", update.Phase, "step", update.Step, "total", update.Total)
			if update.Phase != tasks.Complete {
				r.writePlain("→ %s\n", update.Message)
			}
		}
	}()

	result, err := engine.Sync(ctx, opts, progress)
	close(progress)
	<-done

	return result, err
}

func (r *Runner) printResult(result *tasks.SyncResult) error {
	r.writePlain("\n")
	if result.DryRun {
		r.writePlainHeader("Dry run (no changes made)")
	} else {
		r.writePlainHeader("Sync complete")
	}

	r.writePlain("Playlist:  %s\n", result.Playlist.Name)
	if result.Playlist.ID != "" {
		r.writePlain("ID:        %s\n", result.Playlist.ID)
	}
	if result.Created {
		r.writePlain("Created:   yes\n")
	}
	r.writePlain("Mode:      %s\n", result.Mode)
	r.writePlain("Liked:     %d\n", result.LikedCount)
	r.writePlain("Existing:  %d\n", result.ExistingCount)

	if result.DryRun {
		r.writePlain("Would add:    %d\n", result.Added)
		r.writePlain("Would remove: %d\n", result.Removed)
		if len(result.Pending) > 0 {
			r.writePlain("\nTracks to add (oldest first):\n")
			for i, track := range result.Pending {
				r.writePlain("%d. %s - %s\n", i+1, track.ArtistNames(), track.Name)
			}
		}
	} else {
		r.writePlain("Added:     %d\n", result.Added)
		r.writePlain("Removed:   %d\n", result.Removed)
	}

	if result.Skipped > 0 {
		r.writePlain("Skipped:   %d (tracks without an ID)\n", result.Skipped)
	}
	if result.RunID != "" {
		r.writePlain("Run:       %s\n", result.RunID)
	}
	return nil
}
