package tasks

import "github.com/desertthunder/likesync/internal/models"

// Missing returns the tracks of source that have no equal in target, in source order.
//
// Equality is [models.Track.Key], so a track already present under a different ID counts as present.
// Duplicates within source are each returned when absent from target.
func Missing(source, target []models.Track) []models.Track {
	present := make(map[models.TrackKey]struct{}, len(target))
	for _, t := range target {
		present[t.Key()] = struct{}{}
	}

	missing := make([]models.Track, 0, len(source))
	for _, s := range source {
		if _, ok := present[s.Key()]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

// TrackIDs extracts mutation IDs in order. Tracks without an ID (local files, removed content) cannot be
// addressed by the API and are counted in skipped instead.
func TrackIDs(tracks []models.Track) (ids []string, skipped int) {
	ids = make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			skipped++
			continue
		}
		ids = append(ids, t.ID)
	}
	return ids, skipped
}
