// Package search implements the debounced, cached, scored, fuzzy-filterable
// search pipeline (§4.6) sitting in front of the Multi-Service Manager.
package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/shared"
	"github.com/tidewire/federate/internal/storage"
)

// Config tunes the pipeline. The entrypoint fills it from shared.SearchConfig
// (debounce, min chars) and the storage section's search cache TTL.
type Config struct {
	Debounce    time.Duration
	MinChars    int
	CacheTTL    time.Duration
	CacheEnable bool
}

// Searcher is the subset of the Multi-Service Manager the pipeline needs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (models.SearchResults, error)
}

// Debouncer tracks the last keystroke and last-fired query so the pipeline
// only searches once typing has paused (§4.6 "Debounced query").
type Debouncer struct {
	mu            sync.Mutex
	debounce      time.Duration
	minChars      int
	lastKeystroke time.Time
	pending       string
	lastSearched  string
}

// NewDebouncer builds a Debouncer with the configured pause and minimum
// query length.
func NewDebouncer(debounce time.Duration, minChars int) *Debouncer {
	return &Debouncer{debounce: debounce, minChars: minChars}
}

// Keystroke records a new query string at time now, resetting the pause
// timer. Call this on every input change.
func (d *Debouncer) Keystroke(query string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = query
	d.lastKeystroke = now
}

// ShouldFire reports whether a search should fire at time now: the pause
// since the last keystroke must exceed the debounce interval, the pending
// query must differ from the last one actually searched, and it must meet
// the minimum length. On a true result the pending query is marked as
// searched so a repeated call at the same instant returns false.
func (d *Debouncer) ShouldFire(now time.Time) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) < d.minChars {
		return "", false
	}
	if now.Sub(d.lastKeystroke) < d.debounce {
		return "", false
	}
	if d.pending == d.lastSearched {
		return "", false
	}
	d.lastSearched = d.pending
	return d.pending, true
}

// Pipeline wires the debounce state machine, the storage cache, the
// Multi-Service Manager fan-out, relevance scoring, and search history into
// one Search entrypoint.
type Pipeline struct {
	cfg       Config
	searcher  Searcher
	backend   storage.Backend
	history   *storage.SearchHistory
	debouncer *Debouncer

	historyMu    sync.Mutex
	historyIndex int // -1 means not currently navigating history
}

// New wires a Pipeline. backend and history may be nil to run the pipeline
// uncached/unlogged (useful in tests that only exercise scoring).
func New(cfg Config, searcher Searcher, backend storage.Backend, history *storage.SearchHistory) *Pipeline {
	if cfg.MinChars <= 0 {
		cfg.MinChars = 1
	}
	return &Pipeline{
		cfg:          cfg,
		searcher:     searcher,
		backend:      backend,
		history:      history,
		debouncer:    NewDebouncer(cfg.Debounce, cfg.MinChars),
		historyIndex: -1,
	}
}

// Keystroke feeds the debounce state machine and interrupts any in-progress
// history Up/Down navigation, matching the original's reset-on-keystroke
// behaviour.
func (p *Pipeline) Keystroke(query string, now time.Time) {
	p.debouncer.Keystroke(query, now)
	p.ResetHistoryCursor()
}

// ResetHistoryCursor clears history navigation state so the next HistoryUp
// call starts from the most recent entry again.
func (p *Pipeline) ResetHistoryCursor() {
	p.historyMu.Lock()
	p.historyIndex = -1
	p.historyMu.Unlock()
}

// HistoryUp moves the history cursor one entry further into the past and
// returns the query at the new position, mirroring the original's
// history_up: repeated calls walk backward through history and clamp at
// the oldest entry rather than wrapping. Returns ("", false) when there is
// no history to navigate.
func (p *Pipeline) HistoryUp() (string, bool) {
	entries, err := p.History()
	if err != nil || len(entries) == 0 {
		return "", false
	}

	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	maxIndex := len(entries) - 1
	if p.historyIndex < maxIndex {
		p.historyIndex++
	}
	if p.historyIndex < 0 || p.historyIndex > maxIndex {
		return "", false
	}
	return entries[p.historyIndex].Query, true
}

// HistoryDown moves the cursor one entry back toward the present. At the
// most recent entry it clears the cursor and returns an empty query,
// mirroring the original's history_down. Returns ("", false) when the
// cursor isn't currently navigating history.
func (p *Pipeline) HistoryDown() (string, bool) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	if p.historyIndex > 0 {
		p.historyIndex--
		entries, err := p.History()
		if err != nil || p.historyIndex >= len(entries) {
			return "", false
		}
		return entries[p.historyIndex].Query, true
	}
	if p.historyIndex == 0 {
		p.historyIndex = -1
		return "", true
	}
	return "", false
}

// PollDebounced fires at most one search for the current pending query, if
// the debounce conditions are met. Returns (nil, false, nil) when nothing
// should fire yet.
func (p *Pipeline) PollDebounced(ctx context.Context, now time.Time, filter string, limit int) (*models.SearchResults, bool, error) {
	query, ok := p.debouncer.ShouldFire(now)
	if !ok {
		return nil, false, nil
	}
	results, err := p.Search(ctx, query, filter, limit)
	if err != nil {
		return nil, true, err
	}
	return results, true, nil
}

// Search performs one cache-or-fan-out search cycle: a cache hit bypasses
// the Multi-Service Manager entirely (but still records history); a miss
// fans out, scores, sorts, caches, and records history.
func (p *Pipeline) Search(ctx context.Context, query, filter string, limit int) (*models.SearchResults, error) {
	serviceFilter := strings.TrimSpace(filter)

	if p.cfg.CacheEnable && p.backend != nil {
		if cached, hit, err := p.backend.GetCachedSearch(ctx, query, serviceFilter, p.cfg.CacheTTL); err == nil && hit {
			p.recordHistory(query, resultCount(*cached))
			filtered := FuzzyFilter(*cached, filter)
			return &filtered, nil
		}
	}

	raw, err := p.searcher.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	ranked := rankResults(query, raw)
	p.cacheTracks(ctx, ranked.Tracks)

	if p.cfg.CacheEnable && p.backend != nil {
		// Best-effort: a cache write failure never blocks the search result.
		_ = p.backend.CacheSearch(ctx, query, serviceFilter, ranked)
	}

	p.recordHistory(query, resultCount(ranked))

	filtered := FuzzyFilter(ranked, filter)
	return &filtered, nil
}

// cacheTracks best-effort records every freshly fanned-out track under its
// cross-service normalized key, so CrossServiceMatches can later recognize
// the same song surfaced by a different provider. A backend that doesn't
// implement storage.TrackCacher (the distributed backend, or a test double)
// silently skips this.
func (p *Pipeline) cacheTracks(ctx context.Context, tracks []models.Track) {
	cacher, ok := p.backend.(storage.TrackCacher)
	if !ok {
		return
	}
	for _, t := range tracks {
		_ = cacher.CacheTrack(ctx, t)
	}
}

// CrossServiceMatches returns every provider's variant of title/artist
// previously seen by a search, via the same normalized key the Download
// Manager and Radio Engine could use to recognize the same song across
// providers. Returns nil when the backend doesn't support cross-service
// resolution.
func (p *Pipeline) CrossServiceMatches(ctx context.Context, title, artist string) ([]storage.TrackCacheEntry, error) {
	cacher, ok := p.backend.(storage.TrackCacher)
	if !ok {
		return nil, nil
	}
	return cacher.ResolveTrack(ctx, shared.NormalizeTrackKey(title, artist))
}

func (p *Pipeline) recordHistory(query string, count int) {
	if p.history == nil {
		return
	}
	_ = p.history.Record(query, count, time.Now().UnixMilli())
}

func resultCount(r models.SearchResults) int {
	return len(r.Tracks) + len(r.Albums) + len(r.Artists)
}

// History returns the persisted query history, most-recent first.
func (p *Pipeline) History() ([]storage.SearchHistoryEntry, error) {
	if p.history == nil {
		return nil, nil
	}
	return p.history.List()
}

// ClearHistory empties the search history.
func (p *Pipeline) ClearHistory() error {
	if p.history == nil {
		return nil
	}
	return p.history.Clear()
}
