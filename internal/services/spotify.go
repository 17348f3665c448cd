// Spotify Web API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/desertthunder/likesync/internal/models"
	"github.com/desertthunder/likesync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	DefaultRedirectURI = "http://127.0.0.1:8080/callback"

	// playlistTrackFields limits playlist item responses to the fields used for reconciliation.
	playlistTrackFields = "items(track(id,name,duration_ms,artists(id,name)))"
)

var spotifyScopes = []string{
	"user-library-read",
	"user-library-modify",
	"playlist-read-private",
	"playlist-modify-public",
	"playlist-modify-private",
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyArtist represents a simplified artist object as embedded in a track.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track. ID is empty for local files.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

// SpotifySavedTrack represents a track saved in the user's library. Track is nil for removed content.
type SpotifySavedTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPlaylistItem represents a track within a playlist context. Track is nil for removed content.
type SpotifyPlaylistItem struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists and create responses).
type SpotifySimplePlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       Owner               `json:"owner"`
	Public      *bool               `json:"public"`
	Tracks      simplePlaylistTrack `json:"tracks"`
	URI         string              `json:"uri"`
}

// SpotifyPage is the paging envelope shared by list endpoints. Total and Next are decoded but never used to
// decide when to stop.
type SpotifyPage[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Public      bool   `json:"public"`
	Description string `json:"description,omitempty"`
}

type addTracksRequest struct {
	URIs     []string `json:"uris"`
	Position int      `json:"position"`
}

type trackRef struct {
	URI string `json:"uri"`
}

type removeTracksRequest struct {
	Tracks []trackRef `json:"tracks"`
}

type spotifyError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService implements the Service interface for Spotify API interactions.
// Uses [oauth2] for authentication and paces requests with a [rate.Limiter].
type SpotifyService struct {
	config         *oauth2.Config
	token          *oauth2.Token
	httpClient     *http.Client
	baseURL        string
	limiter        *rate.Limiter
	onTokenRefresh func(*oauth2.Token)
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id in credentials", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret in credentials", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = DefaultRedirectURI
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       spotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
	}, nil
}

// Authenticate performs OAuth2 authentication with Spotify.
// Expects an "access_token" and/or "refresh_token", or an "auth_code" to exchange.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	accessToken := credentials["access_token"]
	refreshToken := credentials["refresh_token"]
	if accessToken != "" || refreshToken != "" {
		return s.OAuthenticate(ctx, &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    credentials["token_type"],
		})
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
		}
		return s.OAuthenticate(ctx, token)
	}

	return fmt.Errorf("%w: missing access_token, refresh_token, or auth_code", shared.ErrMissingCredentials)
}

// OAuthenticate authenticates with an existing token. Expired tokens are refreshed automatically when a
// refresh token is present, and each new token is passed to the callback set by [SpotifyService.SetTokenRefreshCallback].
func (s *SpotifyService) OAuthenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return fmt.Errorf("%w: token has neither access nor refresh token", shared.ErrInvalidArgument)
	}

	source := &refreshableTokenSource{
		source:   s.config.TokenSource(ctx, token),
		callback: s.notifyTokenRefresh,
		last:     token.AccessToken,
	}

	s.token = token
	s.httpClient = oauth2.NewClient(ctx, source)
	return nil
}

// SetTokenRefreshCallback registers fn to receive refreshed tokens. A nil fn disables notification.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.onTokenRefresh = fn
}

func (s *SpotifyService) notifyTokenRefresh(token *oauth2.Token) {
	if s.onTokenRefresh != nil {
		s.onTokenRefresh(token)
	}
}

// SetRateLimit paces API requests to at most rps per second. Zero or negative disables pacing.
func (s *SpotifyService) SetRateLimit(rps float64) {
	if rps <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig returns the OAuth2 client configuration.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// doRequest performs an authenticated HTTP request to the Spotify API.
//
// body, when non-nil, is sent as JSON. result, when non-nil, receives the decoded JSON response.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token refresh failed: %v", shared.ErrTokenExpired, retrieveErr)
		}
		return fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// statusError maps a non-2xx response to a sentinel error carrying the status and API message.
func statusError(resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)
	var apiErr spotifyError
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); err == nil {
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d: %s", shared.ErrTokenExpired, resp.StatusCode, msg)
	case http.StatusTooManyRequests:
		if retry := resp.Header.Get("Retry-After"); retry != "" {
			msg = fmt.Sprintf("%s (retry after %ss)", msg, retry)
		}
		return fmt.Errorf("%w: status %d: %s", shared.ErrRateLimited, resp.StatusCode, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: status %d: %s", shared.ErrPlaylistNotFound, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
	}
}

func checkPage(limit, offset int) error {
	if limit < 1 || limit > shared.MaxPageSize {
		return fmt.Errorf("%w: limit must be between 1 and %d, got %d", shared.ErrInvalidArgument, shared.MaxPageSize, limit)
	}
	if offset < 0 {
		return fmt.Errorf("%w: offset cannot be negative, got %d", shared.ErrInvalidArgument, offset)
	}
	return nil
}

func checkBatch(ids []string) error {
	if len(ids) > shared.MaxBatchSize {
		return fmt.Errorf("%w: at most %d tracks per call, got %d", shared.ErrInvalidArgument, shared.MaxBatchSize, len(ids))
	}
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty track id", shared.ErrInvalidArgument)
		}
	}
	return nil
}

func trackURI(id string) string {
	return "spotify:track:" + id
}

// toTrack converts an API track. Nil (removed content) yields the zero Track, which has no ID.
func toTrack(st *SpotifyTrack) models.Track {
	if st == nil {
		return models.Track{}
	}
	artists := make([]models.Artist, len(st.Artists))
	for i, a := range st.Artists {
		artists[i] = models.Artist{ID: a.ID, Name: a.Name}
	}
	return models.Track{ID: st.ID, Name: st.Name, Artists: artists, DurationMS: st.DurationMS}
}

func toPlaylist(sp *SpotifySimplePlaylist) models.Playlist {
	if sp == nil {
		return models.Playlist{}
	}
	return models.Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		OwnerID:     sp.Owner.ID,
		TrackCount:  sp.Tracks.Total,
		Public:      sp.Public != nil && *sp.Public,
	}
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUserID returns the authenticated user's ID.
func (s *SpotifyService) CurrentUserID(ctx context.Context) (string, error) {
	user, err := s.UserProfile(ctx)
	if err != nil {
		return "", err
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: profile has no user id", shared.ErrAPIRequest)
	}
	return user.ID, nil
}

// CreatePlaylist creates an empty playlist for userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID, name string, public bool) (*models.Playlist, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", shared.ErrMissingArgument)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrMissingArgument)
	}

	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))
	body := createPlaylistRequest{Name: name, Public: public}

	var created SpotifySimplePlaylist
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, err
	}

	pl := toPlaylist(&created)
	return &pl, nil
}

// ListPlaylists retrieves one page of the current user's playlists.
func (s *SpotifyService) ListPlaylists(ctx context.Context, limit, offset int) ([]models.Playlist, error) {
	if err := checkPage(limit, offset); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

	var page SpotifyPage[*SpotifySimplePlaylist]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}

	playlists := make([]models.Playlist, len(page.Items))
	for i, item := range page.Items {
		playlists[i] = toPlaylist(item)
	}
	return playlists, nil
}

// ListPlaylistTracks retrieves one page of a playlist's tracks, requesting only the fields needed for reconciliation.
func (s *SpotifyService) ListPlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]models.Track, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id is required", shared.ErrMissingArgument)
	}
	if err := checkPage(limit, offset); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", fmt.Sprint(limit))
	query.Set("offset", fmt.Sprint(offset))
	query.Set("fields", playlistTrackFields)
	query.Set("additional_types", "track")
	endpoint := fmt.Sprintf("/playlists/%s/tracks?%s", url.PathEscape(playlistID), query.Encode())

	var page SpotifyPage[SpotifyPlaylistItem]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, len(page.Items))
	for i, item := range page.Items {
		tracks[i] = toTrack(item.Track)
	}
	return tracks, nil
}

// ListSavedTracks retrieves one page of the user's saved tracks, most recently saved first.
func (s *SpotifyService) ListSavedTracks(ctx context.Context, limit, offset int) ([]models.Track, error) {
	if err := checkPage(limit, offset); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)

	var page SpotifyPage[SpotifySavedTrack]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, len(page.Items))
	for i, item := range page.Items {
		tracks[i] = toTrack(item.Track)
	}
	return tracks, nil
}

// InsertTracks adds up to 100 tracks at position, in the order given. An empty ids makes no request.
func (s *SpotifyService) InsertTracks(ctx context.Context, playlistID string, ids []string, position int) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrMissingArgument)
	}
	if position < 0 {
		return fmt.Errorf("%w: position cannot be negative", shared.ErrInvalidArgument)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := checkBatch(ids); err != nil {
		return err
	}

	uris := make([]string, len(ids))
	for i, id := range ids {
		uris[i] = trackURI(id)
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return s.doRequest(ctx, http.MethodPost, endpoint, addTracksRequest{URIs: uris, Position: position}, nil)
}

// RemoveTracks removes all occurrences of up to 100 tracks. An empty ids makes no request.
func (s *SpotifyService) RemoveTracks(ctx context.Context, playlistID string, ids []string) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrMissingArgument)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := checkBatch(ids); err != nil {
		return err
	}

	refs := make([]trackRef, len(ids))
	for i, id := range ids {
		refs[i] = trackRef{URI: trackURI(id)}
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	return s.doRequest(ctx, http.MethodDelete, endpoint, removeTracksRequest{Tracks: refs}, nil)
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and reports each token whose access token differs from
// the previous one.
type refreshableTokenSource struct {
	mu       sync.Mutex
	source   oauth2.TokenSource
	callback func(*oauth2.Token)
	last     string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}

var _ OAuthService = (*SpotifyService)(nil)
