package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/likesync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file from the embedded template when missing, then initializes the history database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}

		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return fmt.Errorf("failed to load created config: %w", err)
		}
		r.config = config
		r.writePlain("✓ Created %s\n", r.configPath)
	} else {
		r.writePlain("✓ Using existing %s\n", r.configPath)
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.OpenHistoryDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeDatabase(r, db)

	r.logger.Info("setup complete", "database", r.config.Database.Path)
	r.writePlain("✓ History database ready at %s\n", r.config.Database.Path)

	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret in %s\n", r.configPath)
	r.writePlain("2. Add %s as a redirect URI in the Spotify developer dashboard\n", r.config.Credentials.Spotify.RedirectURI)
	r.writePlain("3. Run 'likesync auth'\n")
	return nil
}
