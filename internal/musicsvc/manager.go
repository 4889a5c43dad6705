// Multi-Service Manager: owns the map from service-tag to adapter and
// implements id-shape routing, fan-out reads, interleaving, and playlist
// dispatch (§4.2).
package musicsvc

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/shared"
)

// minAdapterSearchLimit is the floor applied when distributing a search
// limit across enabled adapters (max(5, limit/adapter_count)).
const minAdapterSearchLimit = 5

// Manager fans out across Tidal/YouTube/Bandcamp adapters, routes
// authoritative calls by id shape, and interleaves aggregate results in a
// fixed priority order. The adapter map is owned exclusively by Manager;
// adapters never reference it back (§9 cyclic references avoided).
type Manager struct {
	mu       sync.RWMutex
	adapters map[models.ServiceType]Service
	primary  models.ServiceType
	timeout  time.Duration
	logger   *log.Logger
}

// NewManager builds a manager over the given adapters, keyed by their own
// ServiceType(). primary falls back to the first available adapter in
// models.ServicePriority order when the configured tag isn't registered.
func NewManager(adapters []Service, primary models.ServiceType, perAdapterTimeout time.Duration, logger *log.Logger) *Manager {
	m := &Manager{
		adapters: make(map[models.ServiceType]Service, len(adapters)),
		timeout:  perAdapterTimeout,
		logger:   logger,
	}
	for _, a := range adapters {
		m.adapters[a.ServiceType()] = a
	}
	if _, ok := m.adapters[primary]; ok {
		m.primary = primary
	} else {
		for _, svc := range models.ServicePriority {
			if _, ok := m.adapters[svc]; ok {
				m.primary = svc
				break
			}
		}
	}
	return m
}

// enabledInPriorityOrder returns the registered adapters in the fixed
// Tidal/YouTube/Bandcamp priority order.
func (m *Manager) enabledInPriorityOrder() []Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Service, 0, len(m.adapters))
	for _, svc := range models.ServicePriority {
		if a, ok := m.adapters[svc]; ok {
			out = append(out, a)
		}
	}
	return out
}

func (m *Manager) adapterFor(tag models.ServiceType) (Service, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[tag]
	return a, ok
}

// withTimeout wraps ctx with the per-adapter search timeout, if configured.
func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

// routeAuthoritative resolves the adapter for a single-target operation
// (stream URL, favorite mutation, detail reads): id shape is authoritative
// here, and a miss is surfaced, not retried against other adapters.
func (m *Manager) routeAuthoritative(id string) (Service, error) {
	tag := DetectService(id)
	a, ok := m.adapterFor(tag)
	if !ok {
		return nil, shared.NewServiceError(shared.KindNotFound, shared.ErrNoAdapter)
	}
	return a, nil
}

// GetStreamURL routes by id shape and fails straight through (authoritative op).
func (m *Manager) GetStreamURL(ctx context.Context, trackID string) (string, error) {
	a, err := m.routeAuthoritative(trackID)
	if err != nil {
		return "", err
	}
	return a.GetStreamURL(ctx, trackID)
}

func (m *Manager) AddFavoriteTrack(ctx context.Context, trackID string) error {
	a, err := m.routeAuthoritative(trackID)
	if err != nil {
		return err
	}
	return a.AddFavoriteTrack(ctx, trackID)
}

func (m *Manager) RemoveFavoriteTrack(ctx context.Context, trackID string) error {
	a, err := m.routeAuthoritative(trackID)
	if err != nil {
		return err
	}
	return a.RemoveFavoriteTrack(ctx, trackID)
}

func (m *Manager) GetAlbumTracks(ctx context.Context, albumID string) ([]models.Track, error) {
	a, err := m.routeAuthoritative(albumID)
	if err != nil {
		return nil, err
	}
	return a.GetAlbumTracks(ctx, albumID)
}

func (m *Manager) GetArtistTopTracks(ctx context.Context, artistID string) ([]models.Track, error) {
	a, err := m.routeAuthoritative(artistID)
	if err != nil {
		return nil, err
	}
	return a.GetArtistTopTracks(ctx, artistID)
}

func (m *Manager) GetArtistAlbums(ctx context.Context, artistID string) ([]models.Album, error) {
	a, err := m.routeAuthoritative(artistID)
	if err != nil {
		return nil, err
	}
	return a.GetArtistAlbums(ctx, artistID)
}

func (m *Manager) GetTrackRadio(ctx context.Context, trackID string, limit int) ([]models.Track, error) {
	a, err := m.routeAuthoritative(trackID)
	if err != nil {
		return nil, err
	}
	return a.GetTrackRadio(ctx, trackID, limit)
}

func (m *Manager) GetArtistRadio(ctx context.Context, artistID string, limit int) ([]models.Track, error) {
	a, err := m.routeAuthoritative(artistID)
	if err != nil {
		return nil, err
	}
	return a.GetArtistRadio(ctx, artistID, limit)
}

// GetPlaylistRadio prefers the primary adapter, then tries all in priority
// order, returning the first non-empty, non-error result.
func (m *Manager) GetPlaylistRadio(ctx context.Context, playlistID string, limit int) ([]models.Track, error) {
	if a, ok := m.adapterFor(m.primary); ok {
		if tracks, err := a.GetPlaylistRadio(ctx, playlistID, limit); err == nil && len(tracks) > 0 {
			return tracks, nil
		}
	}
	for _, a := range m.enabledInPriorityOrder() {
		tracks, err := a.GetPlaylistRadio(ctx, playlistID, limit)
		if err == nil && len(tracks) > 0 {
			return tracks, nil
		}
	}
	return nil, nil
}

// GetCoverURL asks every adapter in priority order and returns the first
// non-empty resolution; only the cover's own service will ever resolve it.
func (m *Manager) GetCoverURL(cover models.CoverArt, size int) string {
	for _, a := range m.enabledInPriorityOrder() {
		if url := a.GetCoverURL(cover, size); url != "" {
			return url
		}
	}
	return ""
}

// SetAudioQuality broadcasts to every adapter.
func (m *Manager) SetAudioQuality(quality AudioQuality) {
	for _, a := range m.enabledInPriorityOrder() {
		a.SetAudioQuality(quality)
	}
}

// GetPlaylists fans out to every enabled adapter; a failing branch is
// logged and excluded, never turning an all-failure fan-out into an error.
func (m *Manager) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	adapters := m.enabledInPriorityOrder()
	var all []models.Playlist
	for _, a := range adapters {
		cctx, cancel := m.withTimeout(ctx)
		playlists, err := a.GetPlaylists(cctx)
		cancel()
		if err != nil {
			m.logFanoutError(a.ServiceType(), "get_playlists", err)
			continue
		}
		all = append(all, playlists...)
	}
	return all, nil
}

func (m *Manager) GetFavoriteTracks(ctx context.Context) ([]models.Track, error) {
	adapters := m.enabledInPriorityOrder()
	var all []models.Track
	for _, a := range adapters {
		cctx, cancel := m.withTimeout(ctx)
		tracks, err := a.GetFavoriteTracks(cctx)
		cancel()
		if err != nil {
			m.logFanoutError(a.ServiceType(), "get_favorite_tracks", err)
			continue
		}
		all = append(all, tracks...)
	}
	return all, nil
}

func (m *Manager) GetFavoriteAlbums(ctx context.Context) ([]models.Album, error) {
	adapters := m.enabledInPriorityOrder()
	var all []models.Album
	for _, a := range adapters {
		cctx, cancel := m.withTimeout(ctx)
		albums, err := a.GetFavoriteAlbums(cctx)
		cancel()
		if err != nil {
			m.logFanoutError(a.ServiceType(), "get_favorite_albums", err)
			continue
		}
		all = append(all, albums...)
	}
	return all, nil
}

func (m *Manager) GetFavoriteArtists(ctx context.Context) ([]models.Artist, error) {
	adapters := m.enabledInPriorityOrder()
	var all []models.Artist
	for _, a := range adapters {
		cctx, cancel := m.withTimeout(ctx)
		artists, err := a.GetFavoriteArtists(cctx)
		cancel()
		if err != nil {
			m.logFanoutError(a.ServiceType(), "get_favorite_artists", err)
			continue
		}
		all = append(all, artists...)
	}
	return all, nil
}

func (m *Manager) logFanoutError(tag models.ServiceType, op string, err error) {
	if m.logger != nil {
		m.logger.Warn("fan-out branch failed", "service", tag, "op", op, "err", err)
	}
}

// Search distributes limit as max(5, limit/adapter_count) per adapter,
// then interleaves each adapter's results in fixed priority order (T0, Y0,
// B0, T1, Y1, B1, …) so that the unscored first page alternates sources.
func (m *Manager) Search(ctx context.Context, query string, limit int) (models.SearchResults, error) {
	adapters := m.enabledInPriorityOrder()
	if len(adapters) == 0 {
		return models.SearchResults{}, nil
	}
	perAdapter := limit / len(adapters)
	if perAdapter < minAdapterSearchLimit {
		perAdapter = minAdapterSearchLimit
	}

	branchResults := make([]models.SearchResults, len(adapters))
	for i, a := range adapters {
		cctx, cancel := m.withTimeout(ctx)
		res, err := a.Search(cctx, query, perAdapter)
		cancel()
		if err != nil {
			m.logFanoutError(a.ServiceType(), "search", err)
			continue
		}
		branchResults[i] = res
	}

	return models.SearchResults{
		Tracks:  interleaveTracks(branchResults),
		Albums:  interleaveAlbums(branchResults),
		Artists: interleaveArtists(branchResults),
	}, nil
}

// interleaveTracks rotates across branches by rank rather than concatenating
// branch-by-branch: the corrected round-robin — [T0, Y0, B0, T1, Y1, B1, …]
// — rather than the degenerate ordering a same-indexed per-branch walk
// produces when earlier branches are shorter than later ones.
func interleaveTracks(branches []models.SearchResults) []models.Track {
	var out []models.Track
	for rank := 0; ; rank++ {
		added := false
		for _, b := range branches {
			if rank < len(b.Tracks) {
				out = append(out, b.Tracks[rank])
				added = true
			}
		}
		if !added {
			return out
		}
	}
}

func interleaveAlbums(branches []models.SearchResults) []models.Album {
	var out []models.Album
	for rank := 0; ; rank++ {
		added := false
		for _, b := range branches {
			if rank < len(b.Albums) {
				out = append(out, b.Albums[rank])
				added = true
			}
		}
		if !added {
			return out
		}
	}
}

func interleaveArtists(branches []models.SearchResults) []models.Artist {
	var out []models.Artist
	for rank := 0; ; rank++ {
		added := false
		for _, b := range branches {
			if rank < len(b.Artists) {
				out = append(out, b.Artists[rank])
				added = true
			}
		}
		if !added {
			return out
		}
	}
}

// CreatePlaylist is always directed to the primary service.
func (m *Manager) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	a, ok := m.adapterFor(m.primary)
	if !ok {
		return nil, shared.NewServiceError(shared.KindNotFound, shared.ErrNoAdapter)
	}
	return a.CreatePlaylist(ctx, name, description)
}

// dispatchMutation attempts every adapter in priority order; the first to
// report success wins. This is how local ("local-…", owned by YouTube) and
// mixed ("mixed-…", owned by Bandcamp) playlists are reached without
// explicit routing by id shape.
func dispatchMutation(adapters []Service, try func(Service) error) error {
	var lastErr error
	for _, a := range adapters {
		if err := try(a); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = shared.NewServiceError(shared.KindNotFound, shared.ErrNoAdapter)
	}
	return lastErr
}

func (m *Manager) UpdatePlaylist(ctx context.Context, playlistID, name, description string) error {
	return dispatchMutation(m.enabledInPriorityOrder(), func(a Service) error {
		return a.UpdatePlaylist(ctx, playlistID, name, description)
	})
}

func (m *Manager) DeletePlaylist(ctx context.Context, playlistID string) error {
	return dispatchMutation(m.enabledInPriorityOrder(), func(a Service) error {
		return a.DeletePlaylist(ctx, playlistID)
	})
}

func (m *Manager) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	return dispatchMutation(m.enabledInPriorityOrder(), func(a Service) error {
		return a.AddTracksToPlaylist(ctx, playlistID, trackIDs)
	})
}

func (m *Manager) RemoveTracksFromPlaylist(ctx context.Context, playlistID string, indices []int) error {
	return dispatchMutation(m.enabledInPriorityOrder(), func(a Service) error {
		return a.RemoveTracksFromPlaylist(ctx, playlistID, indices)
	})
}

// GetPlaylistTracks tries id-shape routing first, falling back to every
// adapter in priority order on a miss (list-reads: id shape is advisory).
func (m *Manager) GetPlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	if a, err := m.routeAuthoritative(playlistID); err == nil {
		if tracks, err := a.GetPlaylistTracks(ctx, playlistID); err == nil {
			return tracks, nil
		}
	}
	for _, a := range m.enabledInPriorityOrder() {
		if tracks, err := a.GetPlaylistTracks(ctx, playlistID); err == nil {
			return tracks, nil
		}
	}
	return nil, shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
}
