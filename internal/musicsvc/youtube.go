// YouTube Music [Service] implementation.
//
// Talks to a local proxy that wraps the ytmusicapi Python library and a
// yt-dlp powered stream resolver; authentication is cookie-based (a curl
// command exported from a signed-in browser session's network tab), not
// OAuth. The exported command is parsed once into ytmusicapi's headers_raw
// format and forwarded to the proxy on every request.
package musicsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/shared"
)

const defaultYouTubeBaseURL = "http://localhost:8080"

// youtubeRequestsPerSecond bounds how often the adapter hits the local
// proxy, keeping a runaway UI loop from hammering it with stream-URL or
// favorites calls.
const youtubeRequestsPerSecond = 5

// YouTubeAdapter implements [Service] against the proxy's REST surface. It
// also doubles as the owning store for local playlists (id prefix
// "local-"), which live entirely in the proxy's sidecar document store.
type YouTubeAdapter struct {
	baseURL    string
	authFile   string
	quality    AudioQuality
	httpClient *http.Client

	authOnce   sync.Once
	headersRaw string
	limiter    *rate.Limiter
}

// NewYouTubeAdapter builds an adapter pointed at the proxy's base URL.
func NewYouTubeAdapter(cfg shared.YouTubeConfig) *YouTubeAdapter {
	base := cfg.BaseURL
	if base == "" {
		base = defaultYouTubeBaseURL
	}
	return &YouTubeAdapter{
		baseURL:    base,
		authFile:   cfg.AuthFile,
		httpClient: http.DefaultClient,
		quality:    QualityHigh,
		limiter:    rate.NewLimiter(rate.Limit(youtubeRequestsPerSecond), youtubeRequestsPerSecond),
	}
}

func (y *YouTubeAdapter) ServiceType() models.ServiceType { return models.ServiceYouTube }

func (y *YouTubeAdapter) IsAuthenticated() bool {
	return y.loadAuth() != ""
}

// loadAuth parses the exported curl command at authFile into ytmusicapi's
// headers_raw format exactly once, caching the result for the adapter's
// lifetime. A missing or unparseable file just leaves the adapter
// unauthenticated rather than erroring every call.
func (y *YouTubeAdapter) loadAuth() string {
	if y.authFile == "" {
		return ""
	}
	y.authOnce.Do(func() {
		parsed, err := shared.ParseCurlFile(y.authFile)
		if err != nil {
			return
		}
		y.headersRaw = parsed.ToHeadersRaw()
	})
	return y.headersRaw
}

// SetAudioQuality is a no-op: YouTube Music streams are opus/m4a at a fixed
// encode; the proxy always serves the best available format.
func (y *YouTubeAdapter) SetAudioQuality(q AudioQuality) { y.quality = q }

func (y *YouTubeAdapter) doJSON(ctx context.Context, method, path string, result any) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return shared.NewServiceError(shared.KindTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+path, nil)
	if err != nil {
		return shared.NewServiceError(shared.KindIo, err)
	}
	if headersRaw := y.loadAuth(); headersRaw != "" {
		req.Header.Set("X-Headers-Raw", headersRaw)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return shared.NewServiceError(shared.KindUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		var buf [512]byte
		n, _ := resp.Body.Read(buf[:])
		return shared.NewUpstreamError(resp.StatusCode, string(buf[:n]))
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return shared.NewServiceError(shared.KindParse, err)
	}
	return nil
}

func (y *YouTubeAdapter) GetStreamURL(ctx context.Context, trackID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := y.doJSON(ctx, http.MethodGet, "/api/stream/"+url.PathEscape(trackID), &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

type ytTrackJSON struct {
	VideoID  string `json:"videoId"`
	Title    string `json:"title"`
	Duration int    `json:"duration_seconds"`
	Artists  []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album *struct {
		Name string `json:"name"`
	} `json:"album"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

func (t ytTrackJSON) toTrack() models.Track {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	album := ""
	if t.Album != nil {
		album = t.Album.Name
	}
	cover := models.NoCoverArt()
	if len(t.Thumbnails) > 0 {
		cover = models.URLCoverArt(t.Thumbnails[len(t.Thumbnails)-1].URL)
	}
	return models.Track{
		ID: t.VideoID, Title: t.Title, Artist: artist, Album: album,
		DurationSeconds: t.Duration, Cover: cover, Service: models.ServiceYouTube,
	}
}

func (y *YouTubeAdapter) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var page []struct {
		PlaylistID  string `json:"playlistId"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Count       int    `json:"count"`
	}
	if err := y.doJSON(ctx, http.MethodGet, "/api/library/playlists", &page); err != nil {
		return nil, err
	}
	out := make([]models.Playlist, 0, len(page))
	for _, p := range page {
		out = append(out, models.Playlist{ID: p.PlaylistID, Title: p.Title, Description: p.Description, TrackCount: p.Count, Service: models.ServiceYouTube})
	}
	return out, nil
}

func (y *YouTubeAdapter) GetPlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	var tracks []ytTrackJSON
	if err := y.doJSON(ctx, http.MethodGet, "/api/playlists/"+url.PathEscape(playlistID)+"/tracks", &tracks); err != nil {
		return nil, err
	}
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.toTrack())
	}
	return out, nil
}

func (y *YouTubeAdapter) GetFavoriteTracks(ctx context.Context) ([]models.Track, error) {
	var tracks []ytTrackJSON
	if err := y.doJSON(ctx, http.MethodGet, "/api/library/songs", &tracks); err != nil {
		return nil, err
	}
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.toTrack())
	}
	return out, nil
}

func (y *YouTubeAdapter) GetFavoriteAlbums(ctx context.Context) ([]models.Album, error) {
	var albums []struct {
		BrowseID string `json:"browseId"`
		Title    string `json:"title"`
		Artist   string `json:"artist"`
		Count    int    `json:"trackCount"`
	}
	if err := y.doJSON(ctx, http.MethodGet, "/api/library/albums", &albums); err != nil {
		return nil, err
	}
	out := make([]models.Album, 0, len(albums))
	for _, a := range albums {
		out = append(out, models.Album{ID: a.BrowseID, Title: a.Title, Artist: a.Artist, NumTracks: a.Count, Service: models.ServiceYouTube})
	}
	return out, nil
}

func (y *YouTubeAdapter) GetFavoriteArtists(ctx context.Context) ([]models.Artist, error) {
	var artists []struct {
		ChannelID string `json:"channelId"`
		Name      string `json:"name"`
	}
	if err := y.doJSON(ctx, http.MethodGet, "/api/library/artists", &artists); err != nil {
		return nil, err
	}
	out := make([]models.Artist, 0, len(artists))
	for _, a := range artists {
		out = append(out, models.Artist{ID: a.ChannelID, Name: a.Name, Service: models.ServiceYouTube})
	}
	return out, nil
}

func (y *YouTubeAdapter) AddFavoriteTrack(ctx context.Context, trackID string) error {
	return y.doJSON(ctx, http.MethodPost, "/api/library/songs/"+url.PathEscape(trackID), nil)
}

func (y *YouTubeAdapter) RemoveFavoriteTrack(ctx context.Context, trackID string) error {
	err := y.doJSON(ctx, http.MethodDelete, "/api/library/songs/"+url.PathEscape(trackID), nil)
	if se, ok := err.(*shared.ServiceError); ok && se.Kind == shared.KindNotFound {
		return nil
	}
	return err
}

func (y *YouTubeAdapter) Search(ctx context.Context, query string, limit int) (models.SearchResults, error) {
	var payload struct {
		Tracks  []ytTrackJSON `json:"tracks"`
		Albums  []struct {
			BrowseID string `json:"browseId"`
			Title    string `json:"title"`
			Artist   string `json:"artist"`
		} `json:"albums"`
		Artists []struct {
			ChannelID string `json:"channelId"`
			Name      string `json:"name"`
		} `json:"artists"`
	}
	q := fmt.Sprintf("/api/search?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := y.doJSON(ctx, http.MethodGet, q, &payload); err != nil {
		return models.SearchResults{}, err
	}
	results := models.SearchResults{}
	for _, t := range payload.Tracks {
		results.Tracks = append(results.Tracks, t.toTrack())
	}
	for _, a := range payload.Albums {
		results.Albums = append(results.Albums, models.Album{ID: a.BrowseID, Title: a.Title, Artist: a.Artist, Service: models.ServiceYouTube})
	}
	for _, a := range payload.Artists {
		results.Artists = append(results.Artists, models.Artist{ID: a.ChannelID, Name: a.Name, Service: models.ServiceYouTube})
	}
	return results, nil
}

func (y *YouTubeAdapter) GetAlbumTracks(ctx context.Context, albumID string) ([]models.Track, error) {
	var tracks []ytTrackJSON
	if err := y.doJSON(ctx, http.MethodGet, "/api/albums/"+url.PathEscape(albumID)+"/tracks", &tracks); err != nil {
		return nil, err
	}
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.toTrack())
	}
	return out, nil
}

func (y *YouTubeAdapter) GetArtistTopTracks(ctx context.Context, artistID string) ([]models.Track, error) {
	var tracks []ytTrackJSON
	if err := y.doJSON(ctx, http.MethodGet, "/api/artists/"+url.PathEscape(artistID)+"/top-tracks", &tracks); err != nil {
		return nil, err
	}
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.toTrack())
	}
	return out, nil
}

func (y *YouTubeAdapter) GetArtistAlbums(ctx context.Context, artistID string) ([]models.Album, error) {
	var albums []struct {
		BrowseID string `json:"browseId"`
		Title    string `json:"title"`
	}
	if err := y.doJSON(ctx, http.MethodGet, "/api/artists/"+url.PathEscape(artistID)+"/albums", &albums); err != nil {
		return nil, err
	}
	out := make([]models.Album, 0, len(albums))
	for _, a := range albums {
		out = append(out, models.Album{ID: a.BrowseID, Title: a.Title, Service: models.ServiceYouTube})
	}
	return out, nil
}

func (y *YouTubeAdapter) radioTracks(ctx context.Context, path string, limit int) ([]models.Track, error) {
	var tracks []ytTrackJSON
	q := fmt.Sprintf("%s?limit=%d", path, limit)
	if err := y.doJSON(ctx, http.MethodGet, q, &tracks); err != nil {
		return nil, err
	}
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.toTrack())
	}
	return out, nil
}

func (y *YouTubeAdapter) GetTrackRadio(ctx context.Context, trackID string, limit int) ([]models.Track, error) {
	return y.radioTracks(ctx, "/api/tracks/"+url.PathEscape(trackID)+"/radio", limit)
}

func (y *YouTubeAdapter) GetArtistRadio(ctx context.Context, artistID string, limit int) ([]models.Track, error) {
	return y.radioTracks(ctx, "/api/artists/"+url.PathEscape(artistID)+"/radio", limit)
}

func (y *YouTubeAdapter) GetPlaylistRadio(ctx context.Context, playlistID string, limit int) ([]models.Track, error) {
	return y.radioTracks(ctx, "/api/playlists/"+url.PathEscape(playlistID)+"/radio", limit)
}

// CreatePlaylist always creates a native YouTube Music playlist via the proxy.
func (y *YouTubeAdapter) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	var created struct {
		PlaylistID string `json:"playlistId"`
	}
	body := fmt.Sprintf("/api/playlists?title=%s&description=%s", url.QueryEscape(name), url.QueryEscape(description))
	if err := y.doJSON(ctx, http.MethodPost, body, &created); err != nil {
		return nil, err
	}
	return &models.Playlist{ID: created.PlaylistID, Title: name, Description: description, Service: models.ServiceYouTube}, nil
}

// UpdatePlaylist and the remaining mutation operations also serve as the
// fallback target the Multi-Service Manager dispatches to for local-
// ("local-…") playlists, whose content the proxy keeps in its own store.
func (y *YouTubeAdapter) UpdatePlaylist(ctx context.Context, playlistID, name, description string) error {
	if models.ClassifyPlaylistID(playlistID) == models.PlaylistCollection {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	body := fmt.Sprintf("/api/playlists/%s?title=%s&description=%s", url.PathEscape(playlistID), url.QueryEscape(name), url.QueryEscape(description))
	return y.doJSON(ctx, http.MethodPost, body, nil)
}

func (y *YouTubeAdapter) DeletePlaylist(ctx context.Context, playlistID string) error {
	if models.ClassifyPlaylistID(playlistID) == models.PlaylistCollection {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	return y.doJSON(ctx, http.MethodDelete, "/api/playlists/"+url.PathEscape(playlistID), nil)
}

func (y *YouTubeAdapter) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if models.ClassifyPlaylistID(playlistID) == models.PlaylistCollection {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	ids, _ := json.Marshal(trackIDs)
	return y.doJSON(ctx, http.MethodPost, "/api/playlists/"+url.PathEscape(playlistID)+"/items?ids="+url.QueryEscape(string(ids)), nil)
}

func (y *YouTubeAdapter) RemoveTracksFromPlaylist(ctx context.Context, playlistID string, indices []int) error {
	if models.ClassifyPlaylistID(playlistID) == models.PlaylistCollection {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	idx, _ := json.Marshal(indices)
	return y.doJSON(ctx, http.MethodDelete, "/api/playlists/"+url.PathEscape(playlistID)+"/items?indices="+url.QueryEscape(string(idx)), nil)
}

// GetCoverURL passes URL covers (the thumbnails the proxy hands back)
// through verbatim, and resolves a YouTube service-id cover to the proxy's
// thumbnail endpoint at the requested size.
func (y *YouTubeAdapter) GetCoverURL(cover models.CoverArt, size int) string {
	if cover.Kind == models.CoverArtURL {
		return cover.URL
	}
	if cover.Kind == models.CoverArtServiceID && cover.Service == models.ServiceYouTube {
		return fmt.Sprintf("%s/api/thumbnail/%s?size=%d", y.baseURL, url.PathEscape(cover.ID), size)
	}
	return ""
}
