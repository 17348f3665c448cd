package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/likesync/internal/server"
	"github.com/desertthunder/likesync/internal/services"
	"github.com/desertthunder/likesync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// SpotifyAuth performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	spotify, err := r.oauthService()
	if err != nil {
		return err
	}

	if err := r.authorize(ctx, spotify, "authorization"); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now run: likesync --dry-run\n")
	return nil
}

// oauthService returns the configured Spotify client, creating one from the credentials when needed.
func (r *Runner) oauthService() (services.OAuthService, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	spotify, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	spotify.SetRateLimit(r.config.Sync.RequestsPerSecond)
	spotify.SetTokenRefreshCallback(r.saveToken)

	r.spotify = spotify
	return spotify, nil
}

// authorize runs the browser flow, stores the resulting token in the config file, and applies it to srv.
func (r *Runner) authorize(ctx context.Context, srv services.OAuthService, prefix string) error {
	token, err := r.doOAuth(ctx, srv, prefix)
	if err != nil {
		return err
	}

	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if err := srv.OAuthenticate(ctx, r.config.Credentials.Spotify.Token()); err != nil {
		return fmt.Errorf("failed to authenticate with new tokens: %w", err)
	}
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, oauthSrv services.OAuthService, prefix string) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := oauthSrv.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(oauthSrv.GetOAuthConfig(), state)
	router := server.NewBasicRouter()
	router.Use(server.LoggingMiddleware(r.logger))
	router.Handler(oauthHandler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	callbackServer, err := server.NewCallbackServer(serverAddr, router, oauthHandler)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}

	r.logger.Info("starting OAuth server", "purpose", prefix, "addr", callbackServer.Addr())
	callbackServer.Start()

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser automatically", "error", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	token, err := callbackServer.Wait(ctx, authTimeout)
	if err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}
	return token, nil
}

// handleSpotifyAuthError checks if an error is a token expiration error and triggers reauthorization if needed.
//
// The first return value reports whether reauthorization was attempted.
func (r *Runner) handleSpotifyAuthError(ctx context.Context, err error) (bool, error) {
	if err == nil {
		return false, nil
	}

	if !errors.Is(err, shared.ErrTokenExpired) {
		return false, err
	}

	r.writePlainln("⚠ Authentication token expired. Starting reauthorization...\n")

	spotify, svcErr := r.oauthService()
	if svcErr != nil {
		return true, svcErr
	}

	if authErr := r.authorize(ctx, spotify, "reauthorization"); authErr != nil {
		return true, fmt.Errorf("reauthorization failed: %w", authErr)
	}

	r.writePlainln("✓ Successfully reauthenticated. Retrying sync...\n")
	return true, nil
}
