package musicsvc

import (
	"context"
	"testing"

	"github.com/tidewire/federate/internal/models"
)

// fakeAdapter is a minimal Service double that echoes its own tag so tests
// can assert which adapter actually handled a call.
type fakeAdapter struct {
	tag            models.ServiceType
	streamErr      error
	tracks         []models.Track
	searchTracks   []models.Track
	mutateErr      error
	playlistTracks []models.Track
	playlistErr    error
	favoritesErr   error
}

func (f *fakeAdapter) ServiceType() models.ServiceType { return f.tag }
func (f *fakeAdapter) IsAuthenticated() bool           { return true }
func (f *fakeAdapter) SetAudioQuality(AudioQuality)    {}

func (f *fakeAdapter) GetStreamURL(ctx context.Context, trackID string) (string, error) {
	if f.streamErr != nil {
		return "", f.streamErr
	}
	return "stream://" + string(f.tag) + "/" + trackID, nil
}

func (f *fakeAdapter) GetPlaylists(ctx context.Context) ([]models.Playlist, error) { return nil, nil }
func (f *fakeAdapter) GetPlaylistTracks(ctx context.Context, id string) ([]models.Track, error) {
	return f.playlistTracks, f.playlistErr
}
func (f *fakeAdapter) GetFavoriteTracks(ctx context.Context) ([]models.Track, error) { return f.tracks, f.favoritesErr }
func (f *fakeAdapter) GetFavoriteAlbums(ctx context.Context) ([]models.Album, error) { return nil, nil }
func (f *fakeAdapter) GetFavoriteArtists(ctx context.Context) ([]models.Artist, error) { return nil, nil }
func (f *fakeAdapter) AddFavoriteTrack(ctx context.Context, id string) error           { return f.mutateErr }
func (f *fakeAdapter) RemoveFavoriteTrack(ctx context.Context, id string) error        { return f.mutateErr }

func (f *fakeAdapter) Search(ctx context.Context, query string, limit int) (models.SearchResults, error) {
	n := len(f.searchTracks)
	if n > limit {
		n = limit
	}
	return models.SearchResults{Tracks: f.searchTracks[:n]}, nil
}

func (f *fakeAdapter) GetAlbumTracks(ctx context.Context, id string) ([]models.Track, error) { return nil, nil }
func (f *fakeAdapter) GetArtistTopTracks(ctx context.Context, id string) ([]models.Track, error) {
	return nil, nil
}
func (f *fakeAdapter) GetArtistAlbums(ctx context.Context, id string) ([]models.Album, error) { return nil, nil }
func (f *fakeAdapter) GetTrackRadio(ctx context.Context, id string, limit int) ([]models.Track, error) {
	return nil, nil
}
func (f *fakeAdapter) GetArtistRadio(ctx context.Context, id string, limit int) ([]models.Track, error) {
	return nil, nil
}
func (f *fakeAdapter) GetPlaylistRadio(ctx context.Context, id string, limit int) ([]models.Track, error) {
	return nil, nil
}
func (f *fakeAdapter) CreatePlaylist(ctx context.Context, name, desc string) (*models.Playlist, error) {
	return &models.Playlist{ID: "created-by-" + string(f.tag), Title: name, Service: f.tag}, nil
}
func (f *fakeAdapter) UpdatePlaylist(ctx context.Context, id, name, desc string) error { return f.mutateErr }
func (f *fakeAdapter) DeletePlaylist(ctx context.Context, id string) error             { return f.mutateErr }
func (f *fakeAdapter) AddTracksToPlaylist(ctx context.Context, id string, trackIDs []string) error {
	return f.mutateErr
}
func (f *fakeAdapter) RemoveTracksFromPlaylist(ctx context.Context, id string, indices []int) error {
	return f.mutateErr
}
func (f *fakeAdapter) GetCoverURL(cover models.CoverArt, size int) string { return "" }

func newThreeAdapters() []Service {
	return []Service{
		&fakeAdapter{tag: models.ServiceTidal},
		&fakeAdapter{tag: models.ServiceYouTube},
		&fakeAdapter{tag: models.ServiceBandcamp},
	}
}

// TestGetStreamURLRoutesByIDShape is e2e scenario 1: a YouTube-shaped id
// must reach the YouTube adapter, not Tidal or Bandcamp.
func TestGetStreamURLRoutesByIDShape(t *testing.T) {
	m := NewManager(newThreeAdapters(), models.ServiceTidal, 0, nil)
	url, err := m.GetStreamURL(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "stream://youtube/dQw4w9WgXcQ" {
		t.Errorf("expected youtube adapter to handle the call, got %q", url)
	}
}

// TestInterleavedSearch is e2e scenario 2: three adapters each returning two
// tracks interleave as [T0, Y0, B0, T1, Y1, B1].
func TestInterleavedSearch(t *testing.T) {
	mk := func(tag models.ServiceType) *fakeAdapter {
		return &fakeAdapter{tag: tag, searchTracks: []models.Track{
			{ID: string(tag) + "-0", Service: tag},
			{ID: string(tag) + "-1", Service: tag},
		}}
	}
	adapters := []Service{mk(models.ServiceTidal), mk(models.ServiceYouTube), mk(models.ServiceBandcamp)}
	m := NewManager(adapters, models.ServiceTidal, 0, nil)

	res, err := m.Search(context.Background(), "query", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"tidal-0", "youtube-0", "bandcamp-0", "tidal-1", "youtube-1", "bandcamp-1"}
	if len(res.Tracks) != len(want) {
		t.Fatalf("expected %d tracks, got %d: %+v", len(want), len(res.Tracks), res.Tracks)
	}
	for i, id := range want {
		if res.Tracks[i].ID != id {
			t.Errorf("position %d: got %q, want %q", i, res.Tracks[i].ID, id)
		}
	}
}

// TestPlaylistDispatchFirstSuccessWins verifies a mutating operation tries
// adapters in priority order and stops at the first success.
func TestPlaylistDispatchFirstSuccessWins(t *testing.T) {
	tidal := &fakeAdapter{tag: models.ServiceTidal, mutateErr: context.DeadlineExceeded}
	youtube := &fakeAdapter{tag: models.ServiceYouTube}
	bandcamp := &fakeAdapter{tag: models.ServiceBandcamp}
	m := NewManager([]Service{tidal, youtube, bandcamp}, models.ServiceTidal, 0, nil)

	if err := m.UpdatePlaylist(context.Background(), "local-1", "new name", ""); err != nil {
		t.Fatalf("expected youtube adapter to succeed, got %v", err)
	}
}

// TestFanoutToleratesPartialFailure ensures one failing adapter doesn't
// zero out the aggregate for a fan-out read.
func TestFanoutToleratesPartialFailure(t *testing.T) {
	bad := &fakeAdapter{tag: models.ServiceTidal, favoritesErr: context.DeadlineExceeded}
	good := &fakeAdapter{tag: models.ServiceYouTube, tracks: []models.Track{{ID: "1"}}}
	m := NewManager([]Service{bad, good}, models.ServiceTidal, 0, nil)

	tracks, err := m.GetFavoriteTracks(context.Background())
	if err != nil {
		t.Fatalf("fan-out must never error on partial failure: %v", err)
	}
	if len(tracks) != 1 {
		t.Errorf("expected the successful branch's track to survive, got %d", len(tracks))
	}
}

func TestManagerPrimaryFallback(t *testing.T) {
	m := NewManager(newThreeAdapters(), models.ServiceBandcamp, 0, nil)
	if m.primary != models.ServiceBandcamp {
		t.Errorf("expected configured primary to be honored when present, got %v", m.primary)
	}

	onlyYoutube := NewManager([]Service{&fakeAdapter{tag: models.ServiceYouTube}}, models.ServiceTidal, 0, nil)
	if onlyYoutube.primary != models.ServiceYouTube {
		t.Errorf("expected fallback to first available adapter, got %v", onlyYoutube.primary)
	}
}
