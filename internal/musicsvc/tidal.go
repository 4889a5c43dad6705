// Tidal [Service] implementation: OAuth2-authenticated adapter with a
// 401-retry-once refresh policy and a playbackinfo-to-legacy stream URL
// fallback.
package musicsvc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/shared"
)

// tidalRequestsPerSecond bounds sustained call rate to the stream-URL and
// favorites endpoints so a misbehaving UI loop cannot hammer the provider;
// the per-search deadline is handled separately via context.WithTimeout.
const tidalRequestsPerSecond = 5

// decodeBase64 tries standard then URL-safe base64 (Tidal emits both
// depending on endpoint version) and returns the decoded bytes.
func decodeBase64(s string) ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

const (
	tidalAPIBaseURL    = "https://api.tidal.com/v1"
	tidalOpenAPIURL    = "https://openapi.tidal.com/v2"
	tidalOAuthTokenURL = "https://auth.tidal.com/v1/oauth2/token"
	tidalOAuthAuthURL  = "https://login.tidal.com/authorize"
)

// tidalOAuthConfig describes the OAuth2 endpoint used both to refresh an
// expired access token reactively and, via the ambient auth collaborator
// (see cmd/auth.go), to run the one-time interactive authorization code
// flow that produces the initial token pair. The core adapter itself never
// initiates the AuthURL leg; it only ever calls Exchange/TokenSource to
// refresh.
func tidalOAuthConfig(cfg shared.TidalConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  tidalOAuthAuthURL,
			TokenURL: tidalOAuthTokenURL,
		},
	}
}

// TidalOAuthConfig exposes the adapter's OAuth2 endpoint configuration to
// the ambient auth collaborator, which drives the interactive
// authorization-code exchange that is out of core scope (see spec
// Non-goals) but still needs somewhere to live.
func TidalOAuthConfig(cfg shared.TidalConfig) *oauth2.Config {
	return tidalOAuthConfig(cfg)
}

// TidalAdapter implements [Service] against the Tidal catalog API.
type TidalAdapter struct {
	mu         sync.Mutex
	httpClient *http.Client
	oauthCfg   *oauth2.Config
	token      *oauth2.Token
	quality    AudioQuality
	logger     *log.Logger
	limiter    *rate.Limiter
}

// NewTidalAdapter builds an adapter from the saved access/refresh token pair.
func NewTidalAdapter(cfg shared.TidalConfig, logger *log.Logger) *TidalAdapter {
	q := AudioQuality(cfg.Quality)
	if q == "" {
		q = QualityHigh
	}
	var tok *oauth2.Token
	if cfg.AccessToken != "" {
		tok = &oauth2.Token{AccessToken: cfg.AccessToken, RefreshToken: cfg.RefreshToken}
	}
	return &TidalAdapter{
		httpClient: http.DefaultClient,
		oauthCfg:   tidalOAuthConfig(cfg),
		token:      tok,
		quality:    q,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(tidalRequestsPerSecond), tidalRequestsPerSecond),
	}
}

func (a *TidalAdapter) ServiceType() models.ServiceType { return models.ServiceTidal }

func (a *TidalAdapter) IsAuthenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token != nil && a.token.AccessToken != ""
}

func (a *TidalAdapter) SetAudioQuality(q AudioQuality) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.quality = q
}

// soundQuality maps the generic quality level to Tidal's legacy parameter name.
func (a *TidalAdapter) soundQuality() string {
	switch a.quality {
	case QualityLow:
		return "LOW"
	case QualityLossless:
		return "LOSSLESS"
	case QualityMaster:
		return "HI_RES_LOSSLESS"
	default:
		return "HIGH"
	}
}

// refresh exchanges the stored refresh token for a new access token.
func (a *TidalAdapter) refresh(ctx context.Context) error {
	a.mu.Lock()
	tok := a.token
	a.mu.Unlock()
	if tok == nil || tok.RefreshToken == "" {
		return shared.NewServiceError(shared.KindAuthRequired, shared.ErrNoRefreshToken)
	}
	src := a.oauthCfg.TokenSource(ctx, tok)
	newTok, err := src.Token()
	if err != nil {
		return shared.NewServiceError(shared.KindAuthRequired, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err))
	}
	a.mu.Lock()
	a.token = newTok
	a.mu.Unlock()
	return nil
}

// doRequest performs an authenticated request, retrying exactly once after
// a refresh on a 401 response (§4.1 token-refresh policy).
func (a *TidalAdapter) doRequest(ctx context.Context, method, rawURL string, retried bool) (*http.Response, error) {
	a.mu.Lock()
	tok := a.token
	a.mu.Unlock()
	if tok == nil {
		return nil, shared.NewServiceError(shared.KindAuthRequired, shared.ErrNotAuthenticated)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, shared.NewServiceError(shared.KindTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, shared.NewServiceError(shared.KindIo, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, shared.NewServiceError(shared.KindUpstream, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && !retried {
		resp.Body.Close()
		if err := a.refresh(ctx); err != nil {
			return nil, err
		}
		return a.doRequest(ctx, method, rawURL, true)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}

	if resp.StatusCode >= 400 {
		body := readExcerpt(resp)
		return nil, shared.NewUpstreamError(resp.StatusCode, body)
	}

	return resp, nil
}

func readExcerpt(resp *http.Response) string {
	defer resp.Body.Close()
	var buf [512]byte
	n, _ := resp.Body.Read(buf[:])
	return string(buf[:n])
}

type tidalPlaybackInfo struct {
	TrackID           int    `json:"trackId"`
	Manifest          string `json:"manifest"`
	ManifestMimeType  string `json:"manifestMimeType"`
}

type tidalManifestURLs struct {
	URLs []string `json:"urls"`
}

// GetStreamURL queries playbackinfo first; on 401/403 it falls back to the
// legacy streamUrl endpoint with quality expressed as soundQuality.
func (a *TidalAdapter) GetStreamURL(ctx context.Context, trackID string) (string, error) {
	modernURL := fmt.Sprintf("%s/tracks/%s/playbackinfo?audioquality=%s&playbackmode=STREAM&assetpresentation=FULL",
		tidalOpenAPIURL, url.PathEscape(trackID), url.QueryEscape(a.soundQuality()))

	resp, err := a.doRequest(ctx, http.MethodGet, modernURL, false)
	if err == nil {
		defer resp.Body.Close()
		var info tidalPlaybackInfo
		if decErr := json.NewDecoder(resp.Body).Decode(&info); decErr != nil {
			return "", shared.NewServiceError(shared.KindParse, decErr)
		}
		manifestURL, decErr := decodeManifestURL(info.Manifest)
		if decErr != nil {
			return "", shared.NewServiceError(shared.KindParse, decErr)
		}
		return manifestURL, nil
	}

	if !isStatusFallback(err) {
		return "", err
	}

	legacyURL := fmt.Sprintf("%s/tracks/%s/streamUrl?soundQuality=%s", tidalAPIBaseURL, url.PathEscape(trackID), url.QueryEscape(a.soundQuality()))
	resp2, err2 := a.doRequest(ctx, http.MethodGet, legacyURL, false)
	if err2 != nil {
		return "", err2
	}
	defer resp2.Body.Close()
	var legacy struct {
		URL string `json:"url"`
	}
	if decErr := json.NewDecoder(resp2.Body).Decode(&legacy); decErr != nil {
		return "", shared.NewServiceError(shared.KindParse, decErr)
	}
	return legacy.URL, nil
}

func isStatusFallback(err error) bool {
	var svcErr *shared.ServiceError
	if !asServiceError(err, &svcErr) {
		return false
	}
	var upstream *shared.UpstreamError
	if !asUpstreamError(svcErr.Err, &upstream) {
		return false
	}
	return upstream.Status == http.StatusUnauthorized || upstream.Status == http.StatusForbidden
}

func asServiceError(err error, target **shared.ServiceError) bool {
	se, ok := err.(*shared.ServiceError)
	if ok {
		*target = se
	}
	return ok
}

func asUpstreamError(err error, target **shared.UpstreamError) bool {
	ue, ok := err.(*shared.UpstreamError)
	if ok {
		*target = ue
	}
	return ok
}

// decodeManifestURL extracts the first URL from a base64-encoded JSON
// manifest whose payload carries a `urls:[...]` field.
func decodeManifestURL(manifest string) (string, error) {
	raw, err := decodeBase64(manifest)
	if err != nil {
		return "", err
	}
	var parsed tidalManifestURLs
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.URLs) == 0 {
		return "", shared.ErrNotFound
	}
	return parsed.URLs[0], nil
}

func (a *TidalAdapter) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, tidalAPIBaseURL+"/users/playlists", false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var page struct {
		Items []struct {
			UUID          string `json:"uuid"`
			Title         string `json:"title"`
			Description   string `json:"description"`
			NumberOfTracks int   `json:"numberOfTracks"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, shared.NewServiceError(shared.KindParse, err)
	}
	out := make([]models.Playlist, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, models.Playlist{
			ID: it.UUID, Title: it.Title, Description: it.Description,
			TrackCount: it.NumberOfTracks, Service: models.ServiceTidal,
		})
	}
	return out, nil
}

func (a *TidalAdapter) GetPlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/playlists/%s/tracks", tidalAPIBaseURL, url.PathEscape(playlistID)), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeTidalTrackPage(resp)
}

func (a *TidalAdapter) GetFavoriteTracks(ctx context.Context) ([]models.Track, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, tidalAPIBaseURL+"/users/favorites/tracks", false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeTidalTrackPage(resp)
}

func (a *TidalAdapter) GetFavoriteAlbums(ctx context.Context) ([]models.Album, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, tidalAPIBaseURL+"/users/favorites/albums", false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var page struct {
		Items []struct {
			ID          int    `json:"id"`
			Title       string `json:"title"`
			Artist      struct{ Name string `json:"name"` } `json:"artist"`
			NumberOfTracks int `json:"numberOfTracks"`
			Cover       string `json:"cover"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, shared.NewServiceError(shared.KindParse, err)
	}
	out := make([]models.Album, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, models.Album{
			ID: strconv.Itoa(it.ID), Title: it.Title, Artist: it.Artist.Name,
			NumTracks: it.NumberOfTracks, Cover: models.ServiceCoverArt(models.ServiceTidal, it.Cover),
			Service: models.ServiceTidal,
		})
	}
	return out, nil
}

func (a *TidalAdapter) GetFavoriteArtists(ctx context.Context) ([]models.Artist, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, tidalAPIBaseURL+"/users/favorites/artists", false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var page struct {
		Items []struct {
			ID      int    `json:"id"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, shared.NewServiceError(shared.KindParse, err)
	}
	out := make([]models.Artist, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, models.Artist{
			ID: strconv.Itoa(it.ID), Name: it.Name,
			Cover: models.ServiceCoverArt(models.ServiceTidal, it.Picture), Service: models.ServiceTidal,
		})
	}
	return out, nil
}

func (a *TidalAdapter) AddFavoriteTrack(ctx context.Context, trackID string) error {
	_, err := a.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/users/favorites/tracks?trackId=%s", tidalAPIBaseURL, url.QueryEscape(trackID)), false)
	return err
}

func (a *TidalAdapter) RemoveFavoriteTrack(ctx context.Context, trackID string) error {
	_, err := a.doRequest(ctx, http.MethodDelete, fmt.Sprintf("%s/users/favorites/tracks/%s", tidalAPIBaseURL, url.PathEscape(trackID)), false)
	if se, ok := err.(*shared.ServiceError); ok && se.Kind == shared.KindNotFound {
		return nil
	}
	return err
}

func (a *TidalAdapter) Search(ctx context.Context, query string, limit int) (models.SearchResults, error) {
	reqURL := fmt.Sprintf("%s/search?query=%s&limit=%d&types=TRACKS,ALBUMS,ARTISTS", tidalAPIBaseURL, url.QueryEscape(query), limit)
	resp, err := a.doRequest(ctx, http.MethodGet, reqURL, false)
	if err != nil {
		return models.SearchResults{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Tracks struct {
			Items []tidalTrackJSON `json:"items"`
		} `json:"tracks"`
		Albums struct {
			Items []struct {
				ID             int    `json:"id"`
				Title          string `json:"title"`
				Artist         struct{ Name string `json:"name"` } `json:"artist"`
				NumberOfTracks int    `json:"numberOfTracks"`
				Cover          string `json:"cover"`
			} `json:"items"`
		} `json:"albums"`
		Artists struct {
			Items []struct {
				ID      int    `json:"id"`
				Name    string `json:"name"`
				Picture string `json:"picture"`
			} `json:"items"`
		} `json:"artists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.SearchResults{}, shared.NewServiceError(shared.KindParse, err)
	}

	results := models.SearchResults{}
	for _, it := range payload.Tracks.Items {
		results.Tracks = append(results.Tracks, it.toTrack())
	}
	for _, it := range payload.Albums.Items {
		results.Albums = append(results.Albums, models.Album{
			ID: strconv.Itoa(it.ID), Title: it.Title, Artist: it.Artist.Name,
			NumTracks: it.NumberOfTracks, Cover: models.ServiceCoverArt(models.ServiceTidal, it.Cover), Service: models.ServiceTidal,
		})
	}
	for _, it := range payload.Artists.Items {
		results.Artists = append(results.Artists, models.Artist{
			ID: strconv.Itoa(it.ID), Name: it.Name, Cover: models.ServiceCoverArt(models.ServiceTidal, it.Picture), Service: models.ServiceTidal,
		})
	}
	return results, nil
}

type tidalTrackJSON struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Duration int    `json:"duration"`
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title string `json:"title"`
		Cover string `json:"cover"`
	} `json:"album"`
}

func (t tidalTrackJSON) toTrack() models.Track {
	return models.Track{
		ID: strconv.Itoa(t.ID), Title: t.Title, Artist: t.Artist.Name, Album: t.Album.Title,
		DurationSeconds: t.Duration, Cover: models.ServiceCoverArt(models.ServiceTidal, t.Album.Cover),
		Service: models.ServiceTidal,
	}
}

func decodeTidalTrackPage(resp *http.Response) ([]models.Track, error) {
	var page struct {
		Items []struct {
			Item tidalTrackJSON `json:"item"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, shared.NewServiceError(shared.KindParse, err)
	}
	out := make([]models.Track, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, it.Item.toTrack())
	}
	return out, nil
}

func (a *TidalAdapter) GetAlbumTracks(ctx context.Context, albumID string) ([]models.Track, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/albums/%s/tracks", tidalAPIBaseURL, url.PathEscape(albumID)), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var page struct {
		Items []tidalTrackJSON `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, shared.NewServiceError(shared.KindParse, err)
	}
	out := make([]models.Track, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, it.toTrack())
	}
	return out, nil
}

func (a *TidalAdapter) GetArtistTopTracks(ctx context.Context, artistID string) ([]models.Track, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/artists/%s/toptracks", tidalAPIBaseURL, url.PathEscape(artistID)), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var page struct {
		Items []tidalTrackJSON `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, shared.NewServiceError(shared.KindParse, err)
	}
	out := make([]models.Track, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, it.toTrack())
	}
	return out, nil
}

func (a *TidalAdapter) GetArtistAlbums(ctx context.Context, artistID string) ([]models.Album, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/artists/%s/albums", tidalAPIBaseURL, url.PathEscape(artistID)), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var page struct {
		Items []struct {
			ID             int    `json:"id"`
			Title          string `json:"title"`
			NumberOfTracks int    `json:"numberOfTracks"`
			Cover          string `json:"cover"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, shared.NewServiceError(shared.KindParse, err)
	}
	out := make([]models.Album, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, models.Album{
			ID: strconv.Itoa(it.ID), Title: it.Title, NumTracks: it.NumberOfTracks,
			Cover: models.ServiceCoverArt(models.ServiceTidal, it.Cover), Service: models.ServiceTidal,
		})
	}
	return out, nil
}

func (a *TidalAdapter) radioTracks(ctx context.Context, path string, limit int) ([]models.Track, error) {
	resp, err := a.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s%s?limit=%d", tidalAPIBaseURL, path, limit), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var page struct {
		Items []tidalTrackJSON `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, shared.NewServiceError(shared.KindParse, err)
	}
	out := make([]models.Track, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, it.toTrack())
	}
	return out, nil
}

func (a *TidalAdapter) GetTrackRadio(ctx context.Context, trackID string, limit int) ([]models.Track, error) {
	return a.radioTracks(ctx, fmt.Sprintf("/tracks/%s/radio", url.PathEscape(trackID)), limit)
}

func (a *TidalAdapter) GetArtistRadio(ctx context.Context, artistID string, limit int) ([]models.Track, error) {
	return a.radioTracks(ctx, fmt.Sprintf("/artists/%s/radio", url.PathEscape(artistID)), limit)
}

func (a *TidalAdapter) GetPlaylistRadio(ctx context.Context, playlistID string, limit int) ([]models.Track, error) {
	return a.radioTracks(ctx, fmt.Sprintf("/playlists/%s/radio", url.PathEscape(playlistID)), limit)
}

func (a *TidalAdapter) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	form := url.Values{"title": {name}, "description": {description}}
	resp, err := a.doRequest(ctx, http.MethodPost, tidalAPIBaseURL+"/users/playlists?"+form.Encode(), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var created struct {
		UUID  string `json:"uuid"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, shared.NewServiceError(shared.KindParse, err)
	}
	return &models.Playlist{ID: created.UUID, Title: created.Title, Service: models.ServiceTidal}, nil
}

func (a *TidalAdapter) UpdatePlaylist(ctx context.Context, playlistID, name, description string) error {
	if models.ClassifyPlaylistID(playlistID) == models.PlaylistCollection {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	form := url.Values{"title": {name}, "description": {description}}
	_, err := a.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/playlists/%s?%s", tidalAPIBaseURL, url.PathEscape(playlistID), form.Encode()), false)
	return err
}

func (a *TidalAdapter) DeletePlaylist(ctx context.Context, playlistID string) error {
	if models.ClassifyPlaylistID(playlistID) == models.PlaylistCollection {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	_, err := a.doRequest(ctx, http.MethodDelete, fmt.Sprintf("%s/playlists/%s", tidalAPIBaseURL, url.PathEscape(playlistID)), false)
	return err
}

func (a *TidalAdapter) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if models.ClassifyPlaylistID(playlistID) == models.PlaylistCollection {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	form := url.Values{"trackIds": {strings.Join(trackIDs, ",")}}
	_, err := a.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/playlists/%s/items?%s", tidalAPIBaseURL, url.PathEscape(playlistID), form.Encode()), false)
	return err
}

func (a *TidalAdapter) RemoveTracksFromPlaylist(ctx context.Context, playlistID string, indices []int) error {
	if models.ClassifyPlaylistID(playlistID) == models.PlaylistCollection {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	strs := make([]string, len(indices))
	for i, idx := range indices {
		strs[i] = strconv.Itoa(idx)
	}
	_, err := a.doRequest(ctx, http.MethodDelete, fmt.Sprintf("%s/playlists/%s/items/%s", tidalAPIBaseURL, url.PathEscape(playlistID), strings.Join(strs, ",")), false)
	return err
}

// GetCoverURL constructs a Tidal image CDN URL for a service-owned cover id.
// Foreign covers (URL variant or a different service) resolve to "".
func (a *TidalAdapter) GetCoverURL(cover models.CoverArt, size int) string {
	if cover.Kind != models.CoverArtServiceID || cover.Service != models.ServiceTidal || cover.ID == "" {
		return ""
	}
	path := strings.ReplaceAll(cover.ID, "-", "/")
	return fmt.Sprintf("https://resources.tidal.com/images/%s/%dx%d.jpg", path, size, size)
}
