package models

import (
	"strconv"
	"strings"
)

// Artist is an artist reference as it appears on a track.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track represents one song in the liked collection or in a playlist.
//
// ID is empty for local files and tracks no longer available on the service.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	DurationMS int      `json:"duration_ms"`
}

// TrackKey is the composite identity of a track: name, ordered artists, and duration.
type TrackKey string

// Key returns the reconciliation identity of t. The track ID is not part of it, so re-uploads of the same
// recording under a new ID compare equal, and so do distinct recordings that share all three fields.
func (t Track) Key() TrackKey {
	var b strings.Builder
	b.WriteString(strconv.Quote(t.Name))
	b.WriteByte('|')
	for i, a := range t.Artists {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(a.ID))
		b.WriteByte(':')
		b.WriteString(strconv.Quote(a.Name))
	}
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(t.DurationMS))
	return TrackKey(b.String())
}

// Equal reports whether t and other have the same name, artists, and duration.
func (t Track) Equal(other Track) bool {
	return t.Key() == other.Key()
}

// ArtistNames joins the artist names for display.
func (t Track) ArtistNames() string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// Playlist represents a playlist in the user's library.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
}
