// Package musicsvc defines the polymorphic Music Service contract and the
// Multi-Service Manager that fans out, routes, and interleaves operations
// across the Tidal, YouTube, and Bandcamp adapters.
package musicsvc

import (
	"context"

	"github.com/tidewire/federate/internal/models"
)

// AudioQuality is the generic quality level every adapter maps onto its own
// provider-specific encoding name.
type AudioQuality string

const (
	QualityLow      AudioQuality = "low"
	QualityHigh     AudioQuality = "high"
	QualityLossless AudioQuality = "lossless"
	QualityMaster   AudioQuality = "master"
)

// Service is the capability set every provider adapter implements (§4.1).
// All methods that hit the network take a context so callers can bound
// fan-out with a per-adapter timeout.
type Service interface {
	ServiceType() models.ServiceType
	IsAuthenticated() bool

	// SetAudioQuality maps a generic level to the provider's own encoding.
	SetAudioQuality(quality AudioQuality)

	// GetStreamURL returns a URL valid for an implementation-defined short
	// window. Fails with AuthRequired, NotFound, or Upstream.
	GetStreamURL(ctx context.Context, trackID string) (string, error)

	GetPlaylists(ctx context.Context) ([]models.Playlist, error)
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error)
	GetFavoriteTracks(ctx context.Context) ([]models.Track, error)
	GetFavoriteAlbums(ctx context.Context) ([]models.Album, error)
	GetFavoriteArtists(ctx context.Context) ([]models.Artist, error)

	AddFavoriteTrack(ctx context.Context, trackID string) error
	RemoveFavoriteTrack(ctx context.Context, trackID string) error

	// Search returns up to limit tracks, albums, and artists.
	Search(ctx context.Context, query string, limit int) (models.SearchResults, error)

	GetAlbumTracks(ctx context.Context, albumID string) ([]models.Track, error)
	GetArtistTopTracks(ctx context.Context, artistID string) ([]models.Track, error)
	GetArtistAlbums(ctx context.Context, artistID string) ([]models.Album, error)

	GetTrackRadio(ctx context.Context, trackID string, limit int) ([]models.Track, error)
	GetArtistRadio(ctx context.Context, artistID string, limit int) ([]models.Track, error)
	GetPlaylistRadio(ctx context.Context, playlistID string, limit int) ([]models.Track, error)

	CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error)
	UpdatePlaylist(ctx context.Context, playlistID, name, description string) error
	DeletePlaylist(ctx context.Context, playlistID string) error
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
	RemoveTracksFromPlaylist(ctx context.Context, playlistID string, indices []int) error

	// GetCoverURL resolves a CoverArt to a URL, returning "" when the
	// cover's originating service does not match this adapter.
	GetCoverURL(cover models.CoverArt, size int) string
}

// DetectService chooses an adapter from an id's syntax (§4.2). The result is
// advisory for list-reads and authoritative for single-target operations.
func DetectService(id string) models.ServiceType {
	if looksLikeBandcamp(id) {
		return models.ServiceBandcamp
	}
	if looksLikeYouTube(id) {
		return models.ServiceYouTube
	}
	return models.ServiceTidal
}

func looksLikeBandcamp(id string) bool {
	if len(id) >= 4 && id[:4] == "http" {
		return true
	}
	return containsSubstring(id, "bandcamp.com")
}

func looksLikeYouTube(id string) bool {
	if len(id) != 11 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

func containsSubstring(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
