package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/desertthunder/likesync/internal/models"
	"github.com/desertthunder/likesync/internal/shared"
)

type fakePlaylist struct {
	models.Playlist
	tracks []models.Track
}

// fakeLibrary is an in-memory music library with the insert and remove semantics of the real API.
type fakeLibrary struct {
	userID      string
	liked       []models.Track // most recently liked first
	playlists   []*fakePlaylist
	catalog     map[string]models.Track
	hideCreated bool // created playlists never show up in listings

	savedErr  error
	createErr error
	insertErr error

	savedCalls  int
	createCalls int
	inserts     [][]string
	removes     [][]string
}

func newFakeLibrary(liked ...models.Track) *fakeLibrary {
	lib := &fakeLibrary{userID: "user-1", liked: liked, catalog: map[string]models.Track{}}
	lib.register(liked...)
	return lib
}

func (f *fakeLibrary) register(tracks ...models.Track) {
	for _, t := range tracks {
		if t.ID != "" {
			f.catalog[t.ID] = t
		}
	}
}

func (f *fakeLibrary) addPlaylist(name string, tracks ...models.Track) *fakePlaylist {
	f.register(tracks...)
	pl := &fakePlaylist{
		Playlist: models.Playlist{ID: fmt.Sprintf("pl-%d", len(f.playlists)+1), Name: name},
		tracks:   slices.Clone(tracks),
	}
	f.playlists = append(f.playlists, pl)
	return pl
}

func (f *fakeLibrary) byID(id string) *fakePlaylist {
	for _, pl := range f.playlists {
		if pl.ID == id {
			return pl
		}
	}
	return nil
}

func (f *fakeLibrary) named(name string) []*fakePlaylist {
	var out []*fakePlaylist
	for _, pl := range f.playlists {
		if pl.Name == name {
			out = append(out, pl)
		}
	}
	return out
}

func (f *fakeLibrary) CurrentUserID(context.Context) (string, error) {
	return f.userID, nil
}

func (f *fakeLibrary) CreatePlaylist(_ context.Context, userID, name string, public bool) (*models.Playlist, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	pl := f.addPlaylist(name)
	pl.OwnerID = userID
	pl.Public = public
	created := pl.Playlist
	return &created, nil
}

func (f *fakeLibrary) ListPlaylists(_ context.Context, limit, offset int) ([]models.Playlist, error) {
	var visible []models.Playlist
	for _, pl := range f.playlists {
		if f.hideCreated && pl.OwnerID != "" {
			continue
		}
		p := pl.Playlist
		p.TrackCount = len(pl.tracks)
		visible = append(visible, p)
	}
	return pageOf(visible, limit, offset), nil
}

func (f *fakeLibrary) ListPlaylistTracks(_ context.Context, playlistID string, limit, offset int) ([]models.Track, error) {
	pl := f.byID(playlistID)
	if pl == nil {
		return nil, shared.ErrPlaylistNotFound
	}
	return pageOf(pl.tracks, limit, offset), nil
}

func (f *fakeLibrary) ListSavedTracks(_ context.Context, limit, offset int) ([]models.Track, error) {
	f.savedCalls++
	if f.savedErr != nil {
		return nil, f.savedErr
	}
	return pageOf(f.liked, limit, offset), nil
}

func (f *fakeLibrary) InsertTracks(_ context.Context, playlistID string, ids []string, position int) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	pl := f.byID(playlistID)
	if pl == nil {
		return shared.ErrPlaylistNotFound
	}
	f.inserts = append(f.inserts, slices.Clone(ids))

	batch := make([]models.Track, 0, len(ids))
	for _, id := range ids {
		t, ok := f.catalog[id]
		if !ok {
			return fmt.Errorf("%w: unknown track %q", shared.ErrAPIRequest, id)
		}
		batch = append(batch, t)
	}
	pl.tracks = slices.Insert(pl.tracks, position, batch...)
	return nil
}

func (f *fakeLibrary) RemoveTracks(_ context.Context, playlistID string, ids []string) error {
	pl := f.byID(playlistID)
	if pl == nil {
		return shared.ErrPlaylistNotFound
	}
	f.removes = append(f.removes, slices.Clone(ids))
	pl.tracks = slices.DeleteFunc(pl.tracks, func(t models.Track) bool { return slices.Contains(ids, t.ID) })
	return nil
}

func (f *fakeLibrary) mutations() int { return len(f.inserts) + len(f.removes) }

type fakeRecorder struct {
	started  []*models.SyncRun
	finished []models.SyncRun
	err      error
}

func (r *fakeRecorder) Start(run *models.SyncRun) error {
	r.started = append(r.started, run)
	return r.err
}

func (r *fakeRecorder) Finish(run *models.SyncRun) error {
	r.finished = append(r.finished, *run)
	return r.err
}

// likedSongs returns n tracks in API order (most recent first) and the same tracks oldest first.
func likedSongs(n int) (apiOrder, oldestFirst []models.Track) {
	for i := range n {
		oldestFirst = append(oldestFirst, song(fmt.Sprintf("s%03d", i), fmt.Sprintf("Song %d", i), "Artist", 1000+i))
	}
	apiOrder = slices.Clone(oldestFirst)
	slices.Reverse(apiOrder)
	return apiOrder, oldestFirst
}

func TestSyncEngine_Sync(t *testing.T) {
	ctx := context.Background()
	a := song("a", "Alpha", "X", 1000)
	b := song("b", "Beta", "X", 2000)
	c := song("c", "Gamma", "Y", 3000)
	x := song("x", "Unliked", "Z", 4000)

	t.Run("merge adds missing liked songs at the top", func(t *testing.T) {
		lib := newFakeLibrary(c, b, a)
		target := lib.addPlaylist(DefaultPlaylistName, x, b)

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Mode != models.ModeMerge {
			t.Errorf("expected merge, got %s", result.Mode)
		}
		if result.Added != 2 || result.Removed != 0 {
			t.Errorf("expected 2 added 0 removed, got %d/%d", result.Added, result.Removed)
		}
		if got := ids(target.tracks); !equalStrings(got, []string{"a", "c", "x", "b"}) {
			t.Errorf("unexpected playlist order %v", got)
		}
		if len(lib.removes) != 0 {
			t.Errorf("merge must not remove, got %d remove calls", len(lib.removes))
		}
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		lib := newFakeLibrary(c, b, a)
		lib.addPlaylist(DefaultPlaylistName, b)
		engine := NewSyncEngine(lib, nil, nil)

		if _, err := engine.Sync(ctx, SyncOptions{}, nil); err != nil {
			t.Fatalf("first sync: %v", err)
		}
		before := lib.mutations()

		result, err := engine.Sync(ctx, SyncOptions{}, nil)
		if err != nil {
			t.Fatalf("second sync: %v", err)
		}
		if result.Added != 0 || lib.mutations() != before {
			t.Errorf("expected no mutations on second run, got %d added and %d new calls", result.Added, lib.mutations()-before)
		}
	})

	t.Run("track under a different id is not re-added", func(t *testing.T) {
		lib := newFakeLibrary(b)
		target := lib.addPlaylist(DefaultPlaylistName, song("b-other", "Beta", "X", 2000))

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Added != 0 || len(lib.inserts) != 0 {
			t.Errorf("expected nothing added, got %d", result.Added)
		}
		if len(target.tracks) != 1 {
			t.Errorf("expected playlist unchanged, got %d tracks", len(target.tracks))
		}
	})

	t.Run("clobber replaces the playlist with liked songs", func(t *testing.T) {
		lib := newFakeLibrary(c, b, a)
		target := lib.addPlaylist("Mirror", x, b, b)

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{PlaylistName: "Mirror", Clobber: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Mode != models.ModeClobber {
			t.Errorf("expected clobber, got %s", result.Mode)
		}
		if result.Removed != 3 || result.Added != 3 {
			t.Errorf("expected 3 removed 3 added, got %d/%d", result.Removed, result.Added)
		}
		if got := ids(target.tracks); !equalStrings(got, []string{"a", "b", "c"}) {
			t.Errorf("expected [a b c], got %v", got)
		}
	})

	t.Run("clobber on a missing playlist creates it", func(t *testing.T) {
		lib := newFakeLibrary(b, a)

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{Clobber: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Mode != models.ModeCreateThenMerge {
			t.Errorf("expected create_then_merge, got %s", result.Mode)
		}
		if len(lib.removes) != 0 {
			t.Errorf("expected no removals, got %d", len(lib.removes))
		}
	})

	t.Run("creates a missing playlist and fills it", func(t *testing.T) {
		lib := newFakeLibrary(c, b, a)
		lib.addPlaylist("Something Else", x)

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{Public: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !result.Created || result.Mode != models.ModeCreateThenMerge {
			t.Errorf("expected created playlist, got created=%v mode=%s", result.Created, result.Mode)
		}
		matches := lib.named(DefaultPlaylistName)
		if len(matches) != 1 {
			t.Fatalf("expected exactly one playlist named %q, got %d", DefaultPlaylistName, len(matches))
		}
		if got := ids(matches[0].tracks); !equalStrings(got, []string{"a", "b", "c"}) {
			t.Errorf("expected [a b c], got %v", got)
		}
		if !matches[0].Public || matches[0].OwnerID != "user-1" {
			t.Errorf("unexpected playlist attributes: %+v", matches[0].Playlist)
		}
	})

	t.Run("falls back to the created id when listing lags", func(t *testing.T) {
		lib := newFakeLibrary(b, a)
		lib.hideCreated = true

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pl := lib.byID(result.Playlist.ID)
		if pl == nil {
			t.Fatalf("result playlist %q not found", result.Playlist.ID)
		}
		if got := ids(pl.tracks); !equalStrings(got, []string{"a", "b"}) {
			t.Errorf("expected [a b], got %v", got)
		}
	})

	t.Run("uses the first playlist with a duplicate name", func(t *testing.T) {
		lib := newFakeLibrary(a)
		first := lib.addPlaylist(DefaultPlaylistName)
		second := lib.addPlaylist(DefaultPlaylistName)

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Playlist.ID != first.ID {
			t.Errorf("expected %s, got %s", first.ID, result.Playlist.ID)
		}
		if len(first.tracks) != 1 || len(second.tracks) != 0 {
			t.Errorf("expected only the first playlist filled, got %d/%d", len(first.tracks), len(second.tracks))
		}
	})

	t.Run("name match is exact", func(t *testing.T) {
		lib := newFakeLibrary(a)
		lib.addPlaylist("liked songs playlist")

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Created {
			t.Error("expected a new playlist for a case-different name")
		}
	})

	t.Run("dry run makes no changes", func(t *testing.T) {
		tests := []struct {
			name        string
			opts        SyncOptions
			setup       func(lib *fakeLibrary)
			wantMode    models.SyncMode
			wantAdded   int
			wantRemoved int
		}{
			{
				name:      "missing playlist",
				opts:      SyncOptions{DryRun: true},
				wantMode:  models.ModeCreateThenMerge,
				wantAdded: 3,
			},
			{
				name:      "merge",
				opts:      SyncOptions{DryRun: true},
				setup:     func(lib *fakeLibrary) { lib.addPlaylist(DefaultPlaylistName, a) },
				wantMode:  models.ModeMerge,
				wantAdded: 2,
			},
			{
				name:        "clobber",
				opts:        SyncOptions{DryRun: true, Clobber: true},
				setup:       func(lib *fakeLibrary) { lib.addPlaylist(DefaultPlaylistName, x, a) },
				wantMode:    models.ModeClobber,
				wantAdded:   3,
				wantRemoved: 2,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				lib := newFakeLibrary(c, b, a)
				if tt.setup != nil {
					tt.setup(lib)
				}

				result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, tt.opts, nil)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				if lib.createCalls != 0 || lib.mutations() != 0 {
					t.Errorf("expected no writes, got %d creates and %d mutations", lib.createCalls, lib.mutations())
				}
				if result.Mode != tt.wantMode {
					t.Errorf("expected mode %s, got %s", tt.wantMode, result.Mode)
				}
				if result.Added != tt.wantAdded || result.Removed != tt.wantRemoved {
					t.Errorf("expected %d/%d planned, got %d/%d", tt.wantAdded, tt.wantRemoved, result.Added, result.Removed)
				}
				if !result.DryRun {
					t.Error("expected DryRun in result")
				}
			})
		}
	})

	t.Run("tracks without an id are never sent", func(t *testing.T) {
		local := song("", "Home Recording", "Me", 500)
		lib := newFakeLibrary(b, local, a)
		target := lib.addPlaylist(DefaultPlaylistName, song("", "Old Local", "Me", 600))

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{Clobber: true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Skipped != 1 {
			t.Errorf("expected 1 skipped, got %d", result.Skipped)
		}
		for _, batch := range append(lib.inserts, lib.removes...) {
			if slices.Contains(batch, "") {
				t.Fatalf("empty id sent to the API: %v", batch)
			}
		}
		if len(lib.removes) != 0 {
			t.Errorf("expected no remove calls for an id-less playlist entry, got %d", len(lib.removes))
		}
		if got := ids(target.tracks); !equalStrings(got, []string{"a", "b", ""}) {
			t.Errorf("unexpected playlist %v", got)
		}
	})

	t.Run("pages and batches large collections", func(t *testing.T) {
		apiOrder, oldestFirst := likedSongs(130)
		lib := newFakeLibrary(apiOrder...)
		target := lib.addPlaylist(DefaultPlaylistName)

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if lib.savedCalls != 4 {
			t.Errorf("expected 4 liked-songs page calls, got %d", lib.savedCalls)
		}
		if result.LikedCount != 130 || result.Added != 130 {
			t.Errorf("expected 130 liked and added, got %d/%d", result.LikedCount, result.Added)
		}
		if result.InsertCalls != 2 || len(lib.inserts) != 2 {
			t.Errorf("expected 2 insert calls, got %d", len(lib.inserts))
		}
		if got := ids(target.tracks); !equalStrings(got, ids(oldestFirst)) {
			t.Error("playlist order does not match liked songs oldest first")
		}
	})

	t.Run("respects custom page and batch sizes", func(t *testing.T) {
		apiOrder, oldestFirst := likedSongs(7)
		lib := newFakeLibrary(apiOrder...)
		target := lib.addPlaylist(DefaultPlaylistName)

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{PageSize: 2, BatchSize: 3}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if lib.savedCalls != 5 {
			t.Errorf("expected 5 liked-songs page calls, got %d", lib.savedCalls)
		}
		if result.InsertCalls != 3 {
			t.Errorf("expected 3 insert calls, got %d", result.InsertCalls)
		}
		if got := ids(target.tracks); !equalStrings(got, ids(oldestFirst)) {
			t.Errorf("unexpected order %v", got)
		}
	})

	t.Run("fetch error aborts before any write", func(t *testing.T) {
		lib := newFakeLibrary(a)
		lib.savedErr = shared.ErrRateLimited
		rec := &fakeRecorder{}

		_, err := NewSyncEngine(lib, rec, nil).Sync(ctx, SyncOptions{}, nil)
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if lib.createCalls != 0 || lib.mutations() != 0 {
			t.Error("expected no writes after a fetch error")
		}
		if len(rec.finished) != 1 || rec.finished[0].Status != models.RunStatusFailed {
			t.Errorf("expected one failed run recorded, got %+v", rec.finished)
		}
	})

	t.Run("create error is returned", func(t *testing.T) {
		lib := newFakeLibrary(a)
		lib.createErr = shared.ErrAPIRequest

		_, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{}, nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("insert error is returned", func(t *testing.T) {
		lib := newFakeLibrary(a)
		lib.addPlaylist(DefaultPlaylistName)
		lib.insertErr = shared.ErrTokenExpired

		result, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{}, nil)
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
		if result == nil || result.Added != 0 {
			t.Errorf("expected partial result with nothing added, got %+v", result)
		}
	})

	t.Run("rejects an invalid batch size", func(t *testing.T) {
		lib := newFakeLibrary(a)

		_, err := NewSyncEngine(lib, nil, nil).Sync(ctx, SyncOptions{BatchSize: -1}, nil)
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if lib.savedCalls != 0 {
			t.Error("expected no API calls")
		}
	})
}

func TestSyncEngine_Recorder(t *testing.T) {
	a := song("a", "Alpha", "X", 1000)
	b := song("b", "Beta", "X", 2000)

	t.Run("records start and outcome", func(t *testing.T) {
		lib := newFakeLibrary(b, a)
		target := lib.addPlaylist(DefaultPlaylistName, a)
		rec := &fakeRecorder{}

		result, err := NewSyncEngine(lib, rec, nil).Sync(context.Background(), SyncOptions{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(rec.started) != 1 || len(rec.finished) != 1 {
			t.Fatalf("expected one start and one finish, got %d/%d", len(rec.started), len(rec.finished))
		}
		run := rec.finished[0]
		if run.ID() != result.RunID {
			t.Errorf("expected run id %s, got %s", result.RunID, run.ID())
		}
		if run.Status != models.RunStatusCompleted || run.CompletedAt == nil {
			t.Errorf("expected completed run, got %s", run.Status)
		}
		if run.PlaylistID != target.ID || run.LikedCount != 2 || run.ExistingCount != 1 || run.TracksAdded != 1 {
			t.Errorf("unexpected run record %+v", run)
		}
	})

	t.Run("recorder errors do not fail the sync", func(t *testing.T) {
		lib := newFakeLibrary(a)
		rec := &fakeRecorder{err: errors.New("disk full")}

		if _, err := NewSyncEngine(lib, rec, nil).Sync(context.Background(), SyncOptions{}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestSyncEngine_Progress(t *testing.T) {
	a := song("a", "Alpha", "X", 1000)
	b := song("b", "Beta", "X", 2000)

	t.Run("reports phases in order", func(t *testing.T) {
		lib := newFakeLibrary(b, a)
		progress := make(chan ProgressUpdate, 100)

		if _, err := NewSyncEngine(lib, nil, nil).Sync(context.Background(), SyncOptions{BatchSize: 1}, progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		var phases []Phase
		for update := range progress {
			if len(phases) == 0 || phases[len(phases)-1] != update.Phase {
				phases = append(phases, update.Phase)
			}
		}

		want := []Phase{FetchLiked, LookupPlaylist, CreatePlaylist, FetchTarget, Reconcile, InsertTracks, Complete}
		if !slices.Equal(phases, want) {
			t.Errorf("expected phases %v, got %v", want, phases)
		}
	})

	t.Run("does not block on a full channel", func(t *testing.T) {
		lib := newFakeLibrary(a)
		progress := make(chan ProgressUpdate)

		if _, err := NewSyncEngine(lib, nil, nil).Sync(context.Background(), SyncOptions{}, progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("final update carries the result", func(t *testing.T) {
		lib := newFakeLibrary(a)
		progress := make(chan ProgressUpdate, 100)

		result, err := NewSyncEngine(lib, nil, nil).Sync(context.Background(), SyncOptions{DryRun: true}, progress)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		var last ProgressUpdate
		for update := range progress {
			last = update
		}
		if last.Phase != Complete || last.Data != result {
			t.Errorf("expected complete update with result, got %+v", last)
		}
	})
}

func TestSyncEngine_NilLibrary(t *testing.T) {
	_, err := NewSyncEngine(nil, nil, nil).Sync(context.Background(), SyncOptions{}, nil)
	if !errors.Is(err, shared.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}
