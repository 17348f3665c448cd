package main

import (
	"context"
	"os"

	"github.com/desertthunder/likesync/internal/shared"
	"github.com/desertthunder/likesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	// -v is taken by --verbose
	cli.VersionFlag = &cli.BoolFlag{Name: "version", Usage: "print the version"}

	app := &cli.Command{
		Name:     "likesync",
		Usage:    "Sync Spotify liked songs into a playlist",
		Version:  "0.3.0",
		Flags:    rootFlags(),
		Before:   runner.Before,
		Action:   runner.Sync,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "name",
			Aliases: []string{"n"},
			Usage:   "Name of the playlist to sync into",
			Value:   tasks.DefaultPlaylistName,
		},
		&cli.BoolFlag{
			Name:    "clobber",
			Aliases: []string{"c"},
			Usage:   "Empty the playlist and re-add every liked song",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Report planned changes without modifying any playlist",
		},
		&cli.BoolFlag{
			Name:    "interactive",
			Aliases: []string{"i"},
			Usage:   "Show progress in an interactive terminal view",
		},
		&cli.BoolFlag{
			Name:  "public",
			Usage: "Create the playlist as public when it does not exist",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to configuration file",
			Value: "config.toml",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
}
