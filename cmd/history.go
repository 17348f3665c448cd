package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/likesync/internal/models"
	"github.com/desertthunder/likesync/internal/repositories"
	"github.com/desertthunder/likesync/internal/shared"
	"github.com/urfave/cli/v3"
)

// runView is the JSON shape of a sync run.
type runView struct {
	ID            string     `json:"id"`
	Sequence      int        `json:"sequence"`
	PlaylistName  string     `json:"playlist_name"`
	PlaylistID    string     `json:"playlist_id,omitempty"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	DryRun        bool       `json:"dry_run"`
	LikedCount    int        `json:"liked_count"`
	ExistingCount int        `json:"existing_count"`
	TracksAdded   int        `json:"tracks_added"`
	TracksRemoved int        `json:"tracks_removed"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func newRunView(run *models.SyncRun) runView {
	return runView{
		ID:            run.ID(),
		Sequence:      run.Sequence(),
		PlaylistName:  run.PlaylistName,
		PlaylistID:    run.PlaylistID,
		Mode:          string(run.Mode),
		Status:        string(run.Status),
		DryRun:        run.DryRun,
		LikedCount:    run.LikedCount,
		ExistingCount: run.ExistingCount,
		TracksAdded:   run.TracksAdded,
		TracksRemoved: run.TracksRemoved,
		Error:         run.ErrorMessage,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
	}
}

// History lists recorded sync runs, most recent first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	if limit < 0 {
		return fmt.Errorf("%w: --limit cannot be negative", shared.ErrInvalidArgument)
	}

	db, err := shared.OpenHistoryDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer closeDatabase(r, db)

	runs, err := repositories.NewSyncRunRepository(db).List(map[string]any{
		"playlist_name": cmd.String("playlist"),
		"limit":         limit,
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]runView, 0, len(runs))
		for _, run := range runs {
			views = append(views, newRunView(run))
		}
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	return r.printHistory(runs)
}

func (r *Runner) printHistory(runs []*models.SyncRun) error {
	if len(runs) == 0 {
		return r.writePlain("No sync runs recorded.\n")
	}

	r.writePlain("Found %d runs:\n\n", len(runs))
	for _, run := range runs {
		label := string(run.Mode)
		if run.DryRun {
			label += ", dry run"
		}
		r.writePlain("#%d %s (%s) %s\n", run.Sequence(), run.PlaylistName, label, run.Status)
		r.writePlain("   Started: %s\n", run.StartedAt.Local().Format(time.DateTime))
		if run.CompletedAt != nil {
			r.writePlain("   Duration: %s\n", run.Duration().Round(time.Millisecond))
		}
		r.writePlain("   Liked: %d  Existing: %d  Added: %d  Removed: %d\n",
			run.LikedCount, run.ExistingCount, run.TracksAdded, run.TracksRemoved)
		if run.ErrorMessage != "" {
			r.writePlain("   Error: %s\n", run.ErrorMessage)
		}
		r.writePlain("\n")
	}
	return nil
}
