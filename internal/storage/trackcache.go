package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/repositories"
	"github.com/tidewire/federate/internal/shared"
)

// TrackCacheEntry is one resolved (service, service_id) variant of a track
// recorded under a cross-service normalized key.
type TrackCacheEntry struct {
	Service         models.ServiceType
	TrackID         string
	Title           string
	Artist          string
	Album           string
	DurationSeconds int
	CoverID         string
}

// TrackCacher is implemented by backends that persist a cross-service index
// of resolved tracks, keyed by shared.NormalizeTrackKey(title, artist), so
// callers can recognize the same song surfaced by more than one provider
// without a shared catalog id. Only the local backend implements this today:
// the distributed backend's key layout (§4.5) has no track_cache analogue,
// so cross-service resolution is a local-only convenience, not part of the
// Backend contract every storage implementation must satisfy.
type TrackCacher interface {
	CacheTrack(ctx context.Context, t models.Track) error
	ResolveTrack(ctx context.Context, normalizedKey string) ([]TrackCacheEntry, error)
}

// CacheTrack records t under its normalized title|artist key, upserting on
// (service, service_id) so repeated sightings of the same track refresh its
// metadata instead of accumulating duplicate rows.
func (b *LocalBackend) CacheTrack(ctx context.Context, t models.Track) error {
	if t.ID == "" || t.Title == "" {
		return nil
	}
	key := shared.NormalizeTrackKey(t.Title, t.Artist)
	coverID := trackCacheCoverID(t)

	seq, err := repositories.NextSequence(b.db, "track_cache")
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO track_cache
			(sequence, normalized_key, service, service_id, title, artist, album, duration_seconds, cover_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service, service_id) DO UPDATE SET
			normalized_key = excluded.normalized_key,
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			duration_seconds = excluded.duration_seconds,
			cover_id = excluded.cover_id
	`, seq, key, string(t.Service), t.ID, t.Title, t.Artist, t.Album, t.DurationSeconds, coverID)
	if err != nil {
		return fmt.Errorf("failed to cache track: %w", err)
	}
	return nil
}

// ResolveTrack returns every service's variant previously cached under
// normalizedKey, oldest-sighted first.
func (b *LocalBackend) ResolveTrack(ctx context.Context, normalizedKey string) ([]TrackCacheEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT service, service_id, title, artist, album, duration_seconds, cover_id
		FROM track_cache
		WHERE normalized_key = ?
		ORDER BY sequence ASC
	`, normalizedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cached track: %w", err)
	}
	defer rows.Close()

	var out []TrackCacheEntry
	for rows.Next() {
		var e TrackCacheEntry
		var service string
		var coverID sql.NullString
		if err := rows.Scan(&service, &e.TrackID, &e.Title, &e.Artist, &e.Album, &e.DurationSeconds, &coverID); err != nil {
			return nil, fmt.Errorf("failed to scan cached track: %w", err)
		}
		e.Service = models.ServiceType(service)
		e.CoverID = coverID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func trackCacheCoverID(t models.Track) string {
	switch t.Cover.Kind {
	case models.CoverArtServiceID:
		return t.Cover.ID
	case models.CoverArtURL:
		return t.Cover.URL
	default:
		return ""
	}
}
