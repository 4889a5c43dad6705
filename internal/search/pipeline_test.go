package search

import (
	"context"
	"testing"
	"time"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/storage"
)

type fakeSearcher struct {
	calls   int
	results models.SearchResults
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) (models.SearchResults, error) {
	f.calls++
	return f.results, f.err
}

// fakeBackend is a minimal in-memory storage.Backend stand-in so pipeline
// tests don't need a real SQLite-backed LocalBackend.
type fakeBackend struct {
	cache map[string]models.SearchResults
}

func newFakeBackend() *fakeBackend { return &fakeBackend{cache: map[string]models.SearchResults{}} }

func (b *fakeBackend) RecordPlay(ctx context.Context, e models.HistoryEntry) error { return nil }
func (b *fakeBackend) GetHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	return nil, nil
}
func (b *fakeBackend) ClearHistory(ctx context.Context) error { return nil }
func (b *fakeBackend) SaveQueue(ctx context.Context, q models.PersistedQueue) error { return nil }
func (b *fakeBackend) LoadQueue(ctx context.Context) (*models.PersistedQueue, error) {
	return nil, nil
}
func (b *fakeBackend) CacheSearch(ctx context.Context, query, filter string, results models.SearchResults) error {
	b.cache[query+"_"+filter] = results
	return nil
}
func (b *fakeBackend) GetCachedSearch(ctx context.Context, query, filter string, ttl time.Duration) (*models.SearchResults, bool, error) {
	r, ok := b.cache[query+"_"+filter]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}
func (b *fakeBackend) PollChanges(ctx context.Context) ([]storage.ChangeEvent, error) { return nil, nil }

func TestDebouncerDoesNotFireBelowMinChars(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, 3)
	now := time.Now()
	d.Keystroke("ab", now)
	if _, ok := d.ShouldFire(now.Add(time.Second)); ok {
		t.Fatal("expected no fire below the minimum character count")
	}
}

func TestDebouncerDoesNotFireBeforePause(t *testing.T) {
	d := NewDebouncer(time.Second, 1)
	now := time.Now()
	d.Keystroke("abc", now)
	if _, ok := d.ShouldFire(now.Add(10 * time.Millisecond)); ok {
		t.Fatal("expected no fire before the debounce pause elapses")
	}
}

func TestDebouncerFiresOnceThenSuppressesSameQuery(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, 1)
	now := time.Now()
	d.Keystroke("abc", now)

	query, ok := d.ShouldFire(now.Add(time.Second))
	if !ok || query != "abc" {
		t.Fatalf("expected fire with query 'abc', got %q %v", query, ok)
	}

	if _, ok := d.ShouldFire(now.Add(2 * time.Second)); ok {
		t.Fatal("expected repeated fire for the same query to be suppressed")
	}
}

func TestPipelineSearchMissFansOutAndCaches(t *testing.T) {
	searcher := &fakeSearcher{results: models.SearchResults{Tracks: []models.Track{{ID: "1", Title: "Hello"}}}}
	backend := newFakeBackend()
	history := storage.NewSearchHistory(t.TempDir(), 10)
	p := New(Config{CacheEnable: true, CacheTTL: time.Minute, MinChars: 1}, searcher, backend, history)

	results, err := p.Search(context.Background(), "hello", "", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.Tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(results.Tracks))
	}
	if searcher.calls != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", searcher.calls)
	}

	if _, hit, _ := backend.GetCachedSearch(context.Background(), "hello", "", time.Minute); !hit {
		t.Fatal("expected the result to be cached after a miss")
	}
}

func TestPipelineSearchHitBypassesUpstream(t *testing.T) {
	searcher := &fakeSearcher{results: models.SearchResults{Tracks: []models.Track{{ID: "1", Title: "Hello"}}}}
	backend := newFakeBackend()
	backend.cache["hello_"] = models.SearchResults{Tracks: []models.Track{{ID: "cached", Title: "Cached"}}}
	history := storage.NewSearchHistory(t.TempDir(), 10)
	p := New(Config{CacheEnable: true, CacheTTL: time.Minute, MinChars: 1}, searcher, backend, history)

	results, err := p.Search(context.Background(), "hello", "", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.Tracks) != 1 || results.Tracks[0].ID != "cached" {
		t.Fatalf("expected the cached result, got %+v", results.Tracks)
	}
	if searcher.calls != 0 {
		t.Fatalf("expected no upstream call on a cache hit, got %d", searcher.calls)
	}
}

func TestPipelineSearchRecordsHistoryOnHitAndMiss(t *testing.T) {
	searcher := &fakeSearcher{results: models.SearchResults{Tracks: []models.Track{{ID: "1", Title: "Hello"}}}}
	backend := newFakeBackend()
	history := storage.NewSearchHistory(t.TempDir(), 10)
	p := New(Config{CacheEnable: true, CacheTTL: time.Minute, MinChars: 1}, searcher, backend, history)

	if _, err := p.Search(context.Background(), "hello", "", 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := p.History()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Query != "hello" {
		t.Fatalf("expected one history entry for 'hello', got %+v", entries)
	}
}

// fakeTrackCacherBackend adds storage.TrackCacher to fakeBackend so the
// pipeline's optional cross-service caching path can be exercised without a
// real SQLite-backed LocalBackend.
type fakeTrackCacherBackend struct {
	*fakeBackend
	cached []models.Track
}

func (b *fakeTrackCacherBackend) CacheTrack(ctx context.Context, t models.Track) error {
	b.cached = append(b.cached, t)
	return nil
}

func (b *fakeTrackCacherBackend) ResolveTrack(ctx context.Context, key string) ([]storage.TrackCacheEntry, error) {
	var out []storage.TrackCacheEntry
	for _, t := range b.cached {
		out = append(out, storage.TrackCacheEntry{Service: t.Service, TrackID: t.ID, Title: t.Title, Artist: t.Artist})
	}
	return out, nil
}

func TestPipelineCachesTracksOnMissAndResolvesCrossService(t *testing.T) {
	searcher := &fakeSearcher{results: models.SearchResults{Tracks: []models.Track{
		{ID: "1", Title: "Hello", Artist: "Adele", Service: models.ServiceTidal},
	}}}
	backend := &fakeTrackCacherBackend{fakeBackend: newFakeBackend()}
	p := New(Config{MinChars: 1}, searcher, backend, nil)

	if _, err := p.Search(context.Background(), "hello", "", 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backend.cached) != 1 {
		t.Fatalf("expected the fanned-out track to be cached, got %d", len(backend.cached))
	}

	matches, err := p.CrossServiceMatches(context.Background(), "Hello", "Adele")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].TrackID != "1" {
		t.Fatalf("expected one cross-service match, got %+v", matches)
	}
}

func TestPipelineCrossServiceMatchesNilWithoutTrackCacher(t *testing.T) {
	p := New(Config{MinChars: 1}, &fakeSearcher{}, newFakeBackend(), nil)
	matches, err := p.CrossServiceMatches(context.Background(), "a", "b")
	if err != nil || matches != nil {
		t.Fatalf("expected (nil, nil) for a backend without TrackCacher, got (%v, %v)", matches, err)
	}
}

func TestHistoryUpAndDownNavigateMostRecentFirst(t *testing.T) {
	searcher := &fakeSearcher{results: models.SearchResults{Tracks: []models.Track{{ID: "1", Title: "Hello"}}}}
	backend := newFakeBackend()
	history := storage.NewSearchHistory(t.TempDir(), 10)
	p := New(Config{MinChars: 1}, searcher, backend, history)

	for _, q := range []string{"first", "second", "third"} {
		if _, err := p.Search(context.Background(), q, "", 20); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if q, ok := p.HistoryUp(); !ok || q != "third" {
		t.Fatalf("expected the first HistoryUp to land on the most recent query, got %q %v", q, ok)
	}
	if q, ok := p.HistoryUp(); !ok || q != "second" {
		t.Fatalf("expected the second HistoryUp to walk further back, got %q %v", q, ok)
	}
	if q, ok := p.HistoryUp(); !ok || q != "first" {
		t.Fatalf("expected the third HistoryUp to reach the oldest entry, got %q %v", q, ok)
	}
	if q, ok := p.HistoryUp(); !ok || q != "first" {
		t.Fatalf("expected HistoryUp to clamp at the oldest entry, got %q %v", q, ok)
	}

	if q, ok := p.HistoryDown(); !ok || q != "second" {
		t.Fatalf("expected HistoryDown to walk back toward the present, got %q %v", q, ok)
	}
	if q, ok := p.HistoryDown(); !ok || q != "third" {
		t.Fatalf("expected HistoryDown to reach the most recent entry, got %q %v", q, ok)
	}
	if q, ok := p.HistoryDown(); !ok || q != "" {
		t.Fatalf("expected HistoryDown past the most recent entry to clear the cursor, got %q %v", q, ok)
	}
	if q, ok := p.HistoryDown(); ok || q != "" {
		t.Fatalf("expected HistoryDown with no active cursor to be a no-op, got %q %v", q, ok)
	}
}

func TestHistoryUpWithEmptyHistoryIsNoop(t *testing.T) {
	p := New(Config{MinChars: 1}, &fakeSearcher{}, newFakeBackend(), storage.NewSearchHistory(t.TempDir(), 10))
	if q, ok := p.HistoryUp(); ok || q != "" {
		t.Fatalf("expected no-op on empty history, got %q %v", q, ok)
	}
}

func TestKeystrokeResetsHistoryCursor(t *testing.T) {
	searcher := &fakeSearcher{results: models.SearchResults{Tracks: []models.Track{{ID: "1", Title: "Hello"}}}}
	history := storage.NewSearchHistory(t.TempDir(), 10)
	p := New(Config{MinChars: 1}, searcher, newFakeBackend(), history)

	if _, err := p.Search(context.Background(), "first", "", 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.HistoryUp(); !ok {
		t.Fatal("expected HistoryUp to find the recorded entry")
	}

	p.Keystroke("f", time.Now())

	if q, ok := p.HistoryDown(); ok || q != "" {
		t.Fatalf("expected a keystroke to reset the history cursor, got %q %v", q, ok)
	}
}

func TestPipelineSearchAppliesFuzzyFilter(t *testing.T) {
	searcher := &fakeSearcher{results: models.SearchResults{Tracks: []models.Track{
		{ID: "match", Title: "Bohemian Rhapsody"},
		{ID: "nomatch", Title: "Zzzzz"},
	}}}
	p := New(Config{MinChars: 1}, searcher, nil, nil)

	results, err := p.Search(context.Background(), "rhapsody", "bohemian", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.Tracks) != 1 || results.Tracks[0].ID != "match" {
		t.Fatalf("expected only the fuzzy-matching track, got %+v", results.Tracks)
	}
}
