// Bandcamp [Service] implementation. Bandcamp has no public catalog API;
// this adapter scrapes album/track pages and JSON data blobs embedded in
// them, and owns a local sidecar store for "mixed-" playlists (tracks that
// may span providers, stored only locally — see the Playlist entity).
package musicsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/shared"
)

// bandcampRequestsPerSecond bounds how often this adapter scrapes
// bandcamp.com, since there is no official API rate limit to respect and
// scraping too fast risks a block.
const bandcampRequestsPerSecond = 2

// mixedPlaylist is the locally-owned, possibly cross-provider playlist
// shape persisted to BandcampAdapter's sidecar document store.
type mixedPlaylist struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	TrackIDs    []string        `json:"track_ids"`
	Tracks      map[string]models.Track `json:"tracks"`
}

// BandcampAdapter scrapes bandcamp.com. It never authenticates: favorite
// mutation surfaces NotFound, and favorite reads return empty lists.
type BandcampAdapter struct {
	httpClient *http.Client
	quality    AudioQuality

	mu        sync.Mutex
	storePath string
	mixed     map[string]*mixedPlaylist

	limiter *rate.Limiter
}

// NewBandcampAdapter builds a scraping adapter whose mixed-playlist sidecar
// store lives at storePath, a JSON document loaded eagerly here. A missing
// or corrupt store starts empty rather than failing construction: losing
// the sidecar should degrade to "no mixed playlists yet," not a crash.
func NewBandcampAdapter(storePath string) *BandcampAdapter {
	b := &BandcampAdapter{
		httpClient: http.DefaultClient,
		quality:    QualityHigh,
		storePath:  storePath,
		mixed:      make(map[string]*mixedPlaylist),
		limiter:    rate.NewLimiter(rate.Limit(bandcampRequestsPerSecond), bandcampRequestsPerSecond),
	}
	b.loadStore()
	return b
}

// loadStore reads the sidecar JSON document into b.mixed. Called only from
// the constructor, before the adapter is shared, so it takes no lock.
func (b *BandcampAdapter) loadStore() {
	if b.storePath == "" {
		return
	}
	data, err := os.ReadFile(b.storePath)
	if err != nil {
		return
	}
	var mixed map[string]*mixedPlaylist
	if err := json.Unmarshal(data, &mixed); err != nil {
		return
	}
	b.mixed = mixed
}

// saveStore atomically rewrites the sidecar JSON document: write to a
// sibling temp file and rename, so a crash mid-write never corrupts the
// previous snapshot. Called with b.mu already held. A write failure is
// swallowed since the in-memory mutation the caller just made must stand
// regardless; the next successful save catches the store back up.
func (b *BandcampAdapter) saveStore() {
	if b.storePath == "" {
		return
	}
	data, err := json.Marshal(b.mixed)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(b.storePath), 0o755); err != nil {
		return
	}
	tmp := b.storePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, b.storePath)
}

func (b *BandcampAdapter) ServiceType() models.ServiceType { return models.ServiceBandcamp }

// IsAuthenticated is always true: Bandcamp scraping needs no credentials.
func (b *BandcampAdapter) IsAuthenticated() bool { return true }

// SetAudioQuality is a no-op: Bandcamp always serves its highest-quality
// stream regardless of requested level.
func (b *BandcampAdapter) SetAudioQuality(q AudioQuality) { b.quality = q }

func (b *BandcampAdapter) fetch(ctx context.Context, rawURL string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", shared.NewServiceError(shared.KindTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", shared.NewServiceError(shared.KindIo, err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", shared.NewServiceError(shared.KindUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", shared.NewUpstreamError(resp.StatusCode, string(body))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", shared.NewServiceError(shared.KindIo, err)
	}
	return string(body), nil
}

// trackInfoBlob is the shape of Bandcamp's embedded `data-tralbum` JSON
// attribute, tolerant to the handful of layouts Bandcamp has shipped.
type trackInfoBlob struct {
	Current struct {
		Title string `json:"title"`
	} `json:"current"`
	Artist string `json:"artist"`
	Trackinfo []struct {
		TrackID int    `json:"id"`
		Title   string `json:"title"`
		Duration float64 `json:"duration"`
		File    map[string]string `json:"file"`
	} `json:"trackinfo"`
}

// extractDataAttr walks the HTML tree looking for the first element
// carrying attrName and returns its value, tolerant to attribute order.
func extractDataAttr(body string, attrName string) (string, bool) {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return "", false
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := tokenizer.Token()
		for _, attr := range tok.Attr {
			if attr.Key == attrName {
				return attr.Val, true
			}
		}
	}
}

func (b *BandcampAdapter) scrapeTrackPage(ctx context.Context, trackURL string) (*trackInfoBlob, error) {
	body, err := b.fetch(ctx, trackURL)
	if err != nil {
		return nil, err
	}
	raw, ok := extractDataAttr(body, "data-tralbum")
	if !ok {
		return nil, shared.NewServiceError(shared.KindParse, fmt.Errorf("data-tralbum attribute not found"))
	}
	var blob trackInfoBlob
	if err := json.Unmarshal([]byte(html.UnescapeString(raw)), &blob); err != nil {
		return nil, shared.NewServiceError(shared.KindParse, err)
	}
	return &blob, nil
}

// GetStreamURL scrapes the track page; Bandcamp's file map carries one or
// more mp3-128 style keys, and one of them is used. With several keys,
// which one is not fixed, since Go map iteration order is unspecified.
func (b *BandcampAdapter) GetStreamURL(ctx context.Context, trackID string) (string, error) {
	blob, err := b.scrapeTrackPage(ctx, trackID)
	if err != nil {
		return "", err
	}
	for _, t := range blob.Trackinfo {
		for _, streamURL := range t.File {
			return streamURL, nil
		}
	}
	return "", shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
}

// GetPlaylists returns this adapter's locally-stored mixed playlists; it
// never surfaces any upstream Bandcamp collection.
func (b *BandcampAdapter) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Playlist, 0, len(b.mixed))
	for _, p := range b.mixed {
		out = append(out, models.Playlist{ID: p.ID, Title: p.Title, Description: p.Description, TrackCount: len(p.TrackIDs), Service: models.ServiceBandcamp})
	}
	return out, nil
}

func (b *BandcampAdapter) GetPlaylistTracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.mixed[playlistID]
	if !ok {
		return nil, shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	out := make([]models.Track, 0, len(p.TrackIDs))
	for _, id := range p.TrackIDs {
		if t, ok := p.Tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetFavoriteTracks, GetFavoriteAlbums, GetFavoriteArtists: Bandcamp has no
// authenticated favorites surface to scrape.
func (b *BandcampAdapter) GetFavoriteTracks(ctx context.Context) ([]models.Track, error) { return nil, nil }
func (b *BandcampAdapter) GetFavoriteAlbums(ctx context.Context) ([]models.Album, error) { return nil, nil }
func (b *BandcampAdapter) GetFavoriteArtists(ctx context.Context) ([]models.Artist, error) { return nil, nil }

func (b *BandcampAdapter) AddFavoriteTrack(ctx context.Context, trackID string) error {
	return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
}

func (b *BandcampAdapter) RemoveFavoriteTrack(ctx context.Context, trackID string) error {
	return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
}

// Search hits Bandcamp's public search page and scrapes result rows.
func (b *BandcampAdapter) Search(ctx context.Context, query string, limit int) (models.SearchResults, error) {
	searchURL := "https://bandcamp.com/search?q=" + strings.ReplaceAll(query, " ", "+")
	body, err := b.fetch(ctx, searchURL)
	if err != nil {
		return models.SearchResults{}, err
	}
	results := parseSearchResults(body, limit)
	return results, nil
}

// parseSearchResults walks the result list, tolerant to Bandcamp's
// "searchresult" item class carrying track/album/artist subtypes.
func parseSearchResults(body string, limit int) models.SearchResults {
	var results models.SearchResults
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var currentClass, currentHref string
	var textBuf strings.Builder
	var capturing bool

	flush := func() {
		text := strings.TrimSpace(textBuf.String())
		textBuf.Reset()
		if text == "" || currentHref == "" {
			return
		}
		switch {
		case strings.Contains(currentClass, "result-info") && len(results.Tracks) < limit:
			results.Tracks = append(results.Tracks, models.Track{ID: currentHref, Title: text, Service: models.ServiceBandcamp})
		}
	}

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			flush()
			return results
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tokenizer.Token()
			if tok.Data == "a" {
				for _, attr := range tok.Attr {
					if attr.Key == "href" && strings.Contains(attr.Val, "bandcamp.com") {
						currentHref = attr.Val
					}
					if attr.Key == "class" {
						currentClass = attr.Val
					}
				}
				capturing = true
			}
		case html.TextToken:
			if capturing {
				textBuf.WriteString(tokenizer.Token().Data)
			}
		case html.EndTagToken:
			tok := tokenizer.Token()
			if tok.Data == "a" {
				flush()
				capturing = false
				currentHref = ""
			}
		}
	}
}

func (b *BandcampAdapter) GetAlbumTracks(ctx context.Context, albumID string) ([]models.Track, error) {
	blob, err := b.scrapeTrackPage(ctx, albumID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Track, 0, len(blob.Trackinfo))
	for _, t := range blob.Trackinfo {
		out = append(out, models.Track{
			ID: albumID + "#" + strconv.Itoa(t.TrackID), Title: t.Title, Artist: blob.Artist,
			Album: blob.Current.Title, DurationSeconds: int(t.Duration), Service: models.ServiceBandcamp,
		})
	}
	return out, nil
}

// GetArtistTopTracks and GetArtistAlbums are unsupported: Bandcamp artist
// ("label") pages list releases, not a ranked top-tracks surface.
func (b *BandcampAdapter) GetArtistTopTracks(ctx context.Context, artistID string) ([]models.Track, error) {
	return nil, shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
}

func (b *BandcampAdapter) GetArtistAlbums(ctx context.Context, artistID string) ([]models.Album, error) {
	return nil, shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
}

// GetTrackRadio, GetArtistRadio, GetPlaylistRadio: Bandcamp has no
// recommendation surface; radio seeds routed here always return empty,
// which the caller treats as "may return empty" rather than failure.
func (b *BandcampAdapter) GetTrackRadio(ctx context.Context, trackID string, limit int) ([]models.Track, error) {
	return nil, nil
}

func (b *BandcampAdapter) GetArtistRadio(ctx context.Context, artistID string, limit int) ([]models.Track, error) {
	return nil, nil
}

func (b *BandcampAdapter) GetPlaylistRadio(ctx context.Context, playlistID string, limit int) ([]models.Track, error) {
	return nil, nil
}

// CreatePlaylist always creates a "mixed-" local playlist since Bandcamp
// has no native playlist concept.
func (b *BandcampAdapter) CreatePlaylist(ctx context.Context, name, description string) (*models.Playlist, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := "mixed-" + shared.GenerateID()
	b.mixed[id] = &mixedPlaylist{ID: id, Title: name, Description: description, Tracks: make(map[string]models.Track)}
	b.saveStore()
	return &models.Playlist{ID: id, Title: name, Description: description, Service: models.ServiceBandcamp}, nil
}

func (b *BandcampAdapter) UpdatePlaylist(ctx context.Context, playlistID, name, description string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.mixed[playlistID]
	if !ok {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	p.Title, p.Description = name, description
	b.saveStore()
	return nil
}

func (b *BandcampAdapter) DeletePlaylist(ctx context.Context, playlistID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mixed[playlistID]; !ok {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	delete(b.mixed, playlistID)
	b.saveStore()
	return nil
}

// AddTracksToPlaylist accepts ids from any provider: mixed playlists span
// providers, so only the id string is retained here (resolving full Track
// metadata is the caller's job via the owning adapter).
func (b *BandcampAdapter) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.mixed[playlistID]
	if !ok {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	p.TrackIDs = append(p.TrackIDs, trackIDs...)
	b.saveStore()
	return nil
}

func (b *BandcampAdapter) RemoveTracksFromPlaylist(ctx context.Context, playlistID string, indices []int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.mixed[playlistID]
	if !ok {
		return shared.NewServiceError(shared.KindNotFound, shared.ErrNotFound)
	}
	remove := make(map[int]bool, len(indices))
	for _, i := range indices {
		remove[i] = true
	}
	kept := p.TrackIDs[:0]
	for i, id := range p.TrackIDs {
		if !remove[i] {
			kept = append(kept, id)
		}
	}
	p.TrackIDs = kept
	b.saveStore()
	return nil
}

// GetCoverURL resolves a Bandcamp cover: a URL cover is returned as is, and
// a Bandcamp service id (an opaque numeric image-server id) is substituted,
// together with size, into a bcbits.com image URL.
func (b *BandcampAdapter) GetCoverURL(cover models.CoverArt, size int) string {
	if cover.Kind == models.CoverArtURL {
		return cover.URL
	}
	if cover.Kind == models.CoverArtServiceID && cover.Service == models.ServiceBandcamp {
		return fmt.Sprintf("https://f4.bcbits.com/img/a%s_%d.jpg", cover.ID, size)
	}
	return ""
}
