package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/likesync/internal/shared"
	"github.com/desertthunder/likesync/internal/tasks"
	"github.com/desertthunder/likesync/internal/ui"
)

const tuiLogPath = "./tmp/likesync-tui.log"

// useFileLogger redirects logs to a file to avoid interfering with TUI rendering
func (r *Runner) useFileLogger() error {
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)
	return nil
}

// runInteractive runs one sync inside the terminal UI and returns its outcome once the UI exits.
func (r *Runner) runInteractive(ctx context.Context, engine *tasks.SyncEngine, opts tasks.SyncOptions) (*tasks.SyncResult, error) {
	model := ui.NewModel(ctx, opts.PlaylistName, opts.DryRun,
		func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error) {
			return engine.Sync(ctx, opts, progress)
		})

	if _, err := tea.NewProgram(model).Run(); err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	return model.Result()
}
