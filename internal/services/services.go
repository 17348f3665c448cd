// package services defines interface Service for interacting with HTTP APIs
//
// Spotify
package services

import (
	"context"

	"github.com/desertthunder/likesync/internal/models"
	"golang.org/x/oauth2"
)

// Service defines the interface for a music library provider whose saved tracks can be mirrored into a playlist.
//
// List methods take a page size and offset and return at most limit items. An empty page marks the end of the
// collection; callers must not rely on any total count.
type Service interface {
	// Authenticate performs OAuth or API key authentication with the service.
	// Returns an error if authentication fails.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// CurrentUserID returns the ID of the authenticated user.
	CurrentUserID(ctx context.Context) (string, error)

	// CreatePlaylist creates an empty playlist owned by userID.
	CreatePlaylist(ctx context.Context, userID, name string, public bool) (*models.Playlist, error)

	// ListPlaylists retrieves one page of the user's playlists, in the order the service lists them.
	ListPlaylists(ctx context.Context, limit, offset int) ([]models.Playlist, error)

	// ListPlaylistTracks retrieves one page of a playlist's tracks in playlist order.
	ListPlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]models.Track, error)

	// ListSavedTracks retrieves one page of the user's saved tracks, most recently saved first.
	ListSavedTracks(ctx context.Context, limit, offset int) ([]models.Track, error)

	// InsertTracks inserts tracks by ID at position, preserving their order.
	InsertTracks(ctx context.Context, playlistID string, ids []string, position int) error

	// RemoveTracks removes every occurrence of each track ID from the playlist.
	RemoveTracks(ctx context.Context, playlistID string, ids []string) error

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// OAuthService extends [Service] for providers using the OAuth2 authorization code flow.
type OAuthService interface {
	Service

	// GetAuthURL returns the URL the user visits to grant access.
	GetAuthURL(state string) string

	// GetOAuthConfig returns the client configuration used to exchange authorization codes.
	GetOAuthConfig() *oauth2.Config

	// OAuthenticate authenticates with an existing token, refreshing it as needed.
	OAuthenticate(ctx context.Context, token *oauth2.Token) error

	// SetTokenRefreshCallback registers fn to receive tokens obtained by refresh.
	SetTokenRefreshCallback(fn func(*oauth2.Token))
}
