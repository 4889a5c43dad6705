// Package artcache implements the bounded LRU image cache for cover art
// (§4.7): a synchronous hit path and a non-blocking fetch-decode-insert miss
// path that notifies listeners once the image lands.
package artcache

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sync"

	_ "golang.org/x/image/webp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tidewire/federate/internal/eventbus"
	"github.com/tidewire/federate/internal/models"
)

// defaultCapacity is used when the configured capacity is non-positive.
const defaultCapacity = 256

// key is the LRU's composite cache key: a provider cover-id or a direct URL,
// plus the requested pixel size.
type key struct {
	id   string
	size int
}

// CoverResolver is the subset of the Multi-Service Manager needed to turn a
// provider-owned CoverArt into a fetchable URL. Only the cover's own
// adapter resolves it; a foreign id resolves to "".
type CoverResolver interface {
	GetCoverURL(cover models.CoverArt, size int) string
}

// Cache is a bounded, mutex-guarded LRU of decoded cover images keyed by
// (id-or-url, size).
type Cache struct {
	mu         sync.Mutex
	lru        *lru.Cache[key, image.Image]
	inflight   map[key]bool
	resolver   CoverResolver
	httpClient *http.Client
	bus        *eventbus.Bus
}

// New builds a Cache bounded at capacity (default 256), resolving
// provider-owned cover ids through resolver and publishing ArtCached
// advisories on bus once a background fetch completes.
func New(capacity int, resolver CoverResolver, bus *eventbus.Bus) (*Cache, error) {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	l, err := lru.New[key, image.Image](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create art cache: %w", err)
	}
	return &Cache{
		lru:        l,
		inflight:   make(map[key]bool),
		resolver:   resolver,
		httpClient: &http.Client{},
		bus:        bus,
	}, nil
}

// cacheKeyFor derives the LRU key for a CoverArt: service-id covers are
// keyed by "service:id" (so two providers never collide on a bare numeric
// id) and direct-URL covers are keyed by the URL itself.
func cacheKeyFor(cover models.CoverArt, size int) (key, bool) {
	switch cover.Kind {
	case models.CoverArtServiceID:
		return key{id: string(cover.Service) + ":" + cover.ID, size: size}, true
	case models.CoverArtURL:
		return key{id: cover.URL, size: size}, true
	default:
		return key{}, false
	}
}

// HasCached reports whether a provider-owned cover id is already cached at
// size, without touching the network.
func (c *Cache) HasCached(service models.ServiceType, id string, size int) bool {
	return c.has(key{id: string(service) + ":" + id, size: size})
}

// HasURLCached reports whether a direct-URL cover is already cached at size.
func (c *Cache) HasURLCached(url string, size int) bool {
	return c.has(key{id: url, size: size})
}

func (c *Cache) has(k key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(k)
}

// Get returns the cached image for cover at size if present. On a miss it
// returns (nil, false) immediately and, unless a fetch for the same key is
// already running, starts a background fetch-decode-insert that publishes
// eventbus.ArtCached when it lands. cover.Kind == CoverArtNone is always a
// miss that starts no fetch.
func (c *Cache) Get(ctx context.Context, cover models.CoverArt, size int) (image.Image, bool) {
	k, ok := cacheKeyFor(cover, size)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	if img, ok := c.lru.Get(k); ok {
		c.mu.Unlock()
		return img, true
	}
	if c.inflight[k] {
		c.mu.Unlock()
		return nil, false
	}
	c.inflight[k] = true
	c.mu.Unlock()

	go c.fill(ctx, k, cover, size)
	return nil, false
}

// GetURL is the direct-URL counterpart to Get, for covers already resolved
// to a URL by the caller (e.g. a local playlist's stored artwork link).
func (c *Cache) GetURL(ctx context.Context, url string, size int) (image.Image, bool) {
	return c.Get(ctx, models.URLCoverArt(url), size)
}

func (c *Cache) fill(ctx context.Context, k key, cover models.CoverArt, size int) {
	defer func() {
		c.mu.Lock()
		delete(c.inflight, k)
		c.mu.Unlock()
	}()

	url := cover.URL
	if cover.Kind == models.CoverArtServiceID {
		if c.resolver == nil {
			return
		}
		url = c.resolver.GetCoverURL(cover, size)
	}
	if url == "" {
		return
	}

	img, err := c.fetch(ctx, url)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.lru.Add(k, img)
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Kind: eventbus.ArtCached, Data: eventbus.ArtCachedData{Key: k.id, Size: k.size}})
	}
}

func (c *Cache) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("cover art request failed with status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover art: %w", err)
	}
	return img, nil
}

// Len reports the number of images currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
