// Package services defines the [Service] interface for music library providers and implements it for Spotify.
//
// # Service Interface
//
// A provider exposes offset-paged reads of saved tracks, playlists, and playlist contents, plus the two playlist
// write operations a sync needs: positional insert and remove-all-occurrences. [Service] satisfies tasks.Library.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication with automatic token refresh.
//
// The [oauth2.Client] refreshes expired tokens using the refresh token. Every new token is passed to the callback
// registered with [SpotifyService.SetTokenRefreshCallback] so the CLI can persist it.
//
// Requests are paced client-side by a [rate.Limiter] when [SpotifyService.SetRateLimit] is set. There is no retry.
//
// Null items in list responses (removed content) become zero-value tracks so a page keeps its length; having no ID,
// they are never sent to the write endpoints.
//
// # OAuth Service Extension
//
// The [OAuthService] interface extends Service for OAuth providers
//
// [SpotifyService] implements this for the local callback flow used by the CLI.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrTokenExpired] : 401 or failed refresh, reauthorization needed
//   - [shared.ErrRateLimited] : 429 from the API
//   - [shared.ErrPlaylistNotFound] : 404 from the API
//   - [shared.ErrAPIRequest] : any other failed request
package services
