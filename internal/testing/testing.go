// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/desertthunder/likesync/internal/models"
	"github.com/desertthunder/likesync/internal/services"
	"golang.org/x/oauth2"
)

// MockService is an in-memory test double for [services.OAuthService].
//
// Saved holds the liked collection, most recently saved first, the order the API returns it in.
// Playlist contents are kept as track IDs and resolved against Saved when listed.
type MockService struct {
	mu        sync.Mutex
	UserID    string
	Saved     []models.Track
	Playlists []models.Playlist
	Contents  map[string][]string
	Errors    map[string]error // keyed by method name
	Calls     map[string]int
	Token     *oauth2.Token
	onRefresh func(*oauth2.Token)
}

// NewMockService returns a MockService for user "mock-user" with the given liked tracks.
func NewMockService(saved ...models.Track) *MockService {
	return &MockService{
		UserID:   "mock-user",
		Saved:    saved,
		Contents: map[string][]string{},
		Errors:   map[string]error{},
		Calls:    map[string]int{},
	}
}

// call records a call to method and returns its configured error.
func (m *MockService) call(method string) error {
	if m.Calls == nil {
		m.Calls = map[string]int{}
	}
	m.Calls[method]++
	return m.Errors[method]
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	return slices.Clone(items[offset:min(offset+limit, len(items))])
}

func (m *MockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call("Authenticate")
}

func (m *MockService) CurrentUserID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("CurrentUserID"); err != nil {
		return "", err
	}
	return m.UserID, nil
}

func (m *MockService) CreatePlaylist(ctx context.Context, userID, name string, public bool) (*models.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("CreatePlaylist"); err != nil {
		return nil, err
	}

	pl := models.Playlist{ID: fmt.Sprintf("pl-%d", len(m.Playlists)+1), Name: name, OwnerID: userID, Public: public}
	m.Playlists = append(m.Playlists, pl)
	if m.Contents == nil {
		m.Contents = map[string][]string{}
	}
	m.Contents[pl.ID] = nil
	return &pl, nil
}

func (m *MockService) ListPlaylists(ctx context.Context, limit, offset int) ([]models.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ListPlaylists"); err != nil {
		return nil, err
	}
	return page(m.Playlists, limit, offset), nil
}

func (m *MockService) ListPlaylistTracks(ctx context.Context, playlistID string, limit, offset int) ([]models.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ListPlaylistTracks"); err != nil {
		return nil, err
	}

	var tracks []models.Track
	for _, id := range m.Contents[playlistID] {
		tracks = append(tracks, m.lookup(id))
	}
	return page(tracks, limit, offset), nil
}

func (m *MockService) ListSavedTracks(ctx context.Context, limit, offset int) ([]models.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ListSavedTracks"); err != nil {
		return nil, err
	}
	return page(m.Saved, limit, offset), nil
}

func (m *MockService) InsertTracks(ctx context.Context, playlistID string, ids []string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("InsertTracks"); err != nil {
		return err
	}

	current := m.Contents[playlistID]
	position = min(max(position, 0), len(current))
	m.Contents[playlistID] = slices.Insert(current, position, ids...)
	return nil
}

func (m *MockService) RemoveTracks(ctx context.Context, playlistID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("RemoveTracks"); err != nil {
		return err
	}

	m.Contents[playlistID] = slices.DeleteFunc(m.Contents[playlistID], func(id string) bool {
		return slices.Contains(ids, id)
	})
	return nil
}

func (m *MockService) Name() string { return "mock" }

func (m *MockService) GetAuthURL(state string) string {
	return "http://example.invalid/authorize?state=" + state
}

func (m *MockService) GetOAuthConfig() *oauth2.Config {
	return &oauth2.Config{ClientID: "mock", RedirectURL: "http://127.0.0.1:8080/callback"}
}

func (m *MockService) OAuthenticate(ctx context.Context, token *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("OAuthenticate"); err != nil {
		return err
	}
	m.Token = token
	return nil
}

func (m *MockService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	m.onRefresh = fn
}

// Refresh simulates a token refresh, notifying the registered callback.
func (m *MockService) Refresh(token *oauth2.Token) {
	m.Token = token
	if m.onRefresh != nil {
		m.onRefresh(token)
	}
}

// PlaylistTrackIDs returns the current contents of a playlist.
func (m *MockService) PlaylistTrackIDs(playlistID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Contents[playlistID])
}

func (m *MockService) lookup(id string) models.Track {
	for _, t := range m.Saved {
		if t.ID == id {
			return t
		}
	}
	return models.Track{ID: id}
}

var _ services.OAuthService = (*MockService)(nil)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
