package artcache

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidewire/federate/internal/eventbus"
	"github.com/tidewire/federate/internal/models"
)

func pngServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
}

type fakeResolver struct{ url string }

func (f fakeResolver) GetCoverURL(cover models.CoverArt, size int) string { return f.url }

func waitForCache(t *testing.T, c *Cache, cover models.CoverArt, size int) image.Image {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if img, ok := c.Get(context.Background(), cover, size); ok {
			return img
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for background fetch to populate the cache")
	return nil
}

func TestGetMissStartsBackgroundFetchThenHits(t *testing.T) {
	srv := pngServer(t)
	defer srv.Close()

	c, err := New(16, fakeResolver{url: srv.URL}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cover := models.ServiceCoverArt(models.ServiceTidal, "abc")
	if _, ok := c.Get(context.Background(), cover, 100); ok {
		t.Fatal("expected a miss on first call")
	}

	img := waitForCache(t, c, cover, 100)
	if img == nil {
		t.Fatal("expected a decoded image after the background fetch completes")
	}
	if !c.HasCached(models.ServiceTidal, "abc", 100) {
		t.Fatal("expected HasCached to report true after a successful fill")
	}
}

func TestGetURLDirectVariant(t *testing.T) {
	srv := pngServer(t)
	defer srv.Close()

	c, err := New(16, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := c.GetURL(context.Background(), srv.URL, 200); ok {
		t.Fatal("expected a miss on first call")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.HasURLCached(srv.URL, 200) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for url-keyed fetch to populate the cache")
}

func TestGetPublishesArtCachedEvent(t *testing.T) {
	srv := pngServer(t)
	defer srv.Close()

	bus := eventbus.New()
	sub, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	c, err := New(16, nil, bus)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.GetURL(context.Background(), srv.URL, 50)

	select {
	case evt := <-sub:
		if evt.Kind != eventbus.ArtCached {
			t.Fatalf("expected ArtCached event, got %v", evt.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ArtCached event")
	}
}

func TestGetUnresolvableCoverIsAMissWithNoFetch(t *testing.T) {
	c, err := New(16, fakeResolver{url: ""}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cover := models.ServiceCoverArt(models.ServiceYouTube, "xyz")
	if _, ok := c.Get(context.Background(), cover, 100); ok {
		t.Fatal("expected a miss")
	}
	time.Sleep(20 * time.Millisecond)
	if c.HasCached(models.ServiceYouTube, "xyz", 100) {
		t.Fatal("expected no cache entry when the resolver can't produce a url")
	}
}

func TestGetNoCoverArtIsAlwaysAMiss(t *testing.T) {
	c, err := New(16, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get(context.Background(), models.NoCoverArt(), 100); ok {
		t.Fatal("expected NoCoverArt to always miss")
	}
}
