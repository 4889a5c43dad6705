package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/repositories"
)

const (
	maxHistorySize     = 500
	dedupWindowSeconds = 10
	queueFileName      = "queue.toml"
	searchHistoryFile  = "search_history.json"
)

// LocalBackend persists history and the search cache in the shared SQLite
// database, and serialises the queue snapshot to a TOML file on disk next
// to it.
type LocalBackend struct {
	db        *sql.DB
	configDir string
}

// NewLocalBackend wires a LocalBackend against an already-migrated
// database handle and the directory queue.toml is written under.
func NewLocalBackend(db *sql.DB, configDir string) *LocalBackend {
	return &LocalBackend{db: db, configDir: configDir}
}

// RecordPlay inserts a history row unless the same track was already
// recorded within the last dedupWindowSeconds, then prunes the table down
// to maxHistorySize, oldest first.
func (b *LocalBackend) RecordPlay(ctx context.Context, entry models.HistoryEntry) error {
	var dup int
	err := b.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM playback_history
		WHERE track_id = ? AND played_at >= datetime('now', ?)
	`, entry.TrackID, fmt.Sprintf("-%d seconds", dedupWindowSeconds)).Scan(&dup)
	if err != nil {
		return fmt.Errorf("failed to check history dedup window: %w", err)
	}
	if dup > 0 {
		return nil
	}

	seq, err := repositories.NextSequence(b.db, "history")
	if err != nil {
		return err
	}

	if _, err := b.db.ExecContext(ctx, `
		INSERT INTO playback_history
			(sequence, track_id, title, artist, album, duration_seconds, cover_id, service, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, seq, entry.TrackID, entry.Title, entry.Artist, entry.Album, entry.DurationSeconds, entry.CoverID, string(entry.Service)); err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}

	return b.pruneHistory(ctx)
}

func (b *LocalBackend) pruneHistory(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		DELETE FROM playback_history
		WHERE id IN (
			SELECT id FROM playback_history
			ORDER BY played_at DESC
			LIMIT -1 OFFSET ?
		)
	`, maxHistorySize)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	return nil
}

// GetHistory returns the most recently played entries first.
func (b *LocalBackend) GetHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = maxHistorySize
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT sequence, track_id, title, artist, album, duration_seconds, cover_id, service,
		       CAST(strftime('%s', played_at) AS INTEGER) * 1000
		FROM playback_history
		ORDER BY played_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var coverID sql.NullString
		var service string
		if err := rows.Scan(&e.Sequence, &e.TrackID, &e.Title, &e.Artist, &e.Album, &e.DurationSeconds, &coverID, &service, &e.PlayedAtMillis); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.CoverID = coverID.String
		e.Service = models.ServiceType(service)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearHistory wipes the playback history table.
func (b *LocalBackend) ClearHistory(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM playback_history`)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (b *LocalBackend) queuePath() string {
	return filepath.Join(b.configDir, queueFileName)
}

// SaveQueue atomically rewrites queue.toml: write to a sibling temp file
// and rename, so a crash mid-write never leaves a truncated snapshot.
func (b *LocalBackend) SaveQueue(ctx context.Context, queue models.PersistedQueue) error {
	if err := os.MkdirAll(b.configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	buf, err := tomlMarshal(queue)
	if err != nil {
		return fmt.Errorf("failed to serialise queue: %w", err)
	}

	path := b.queuePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write queue snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace queue snapshot: %w", err)
	}
	return nil
}

// LoadQueue returns nil (no error) when the file is missing, unreadable,
// or fails to parse as TOML: a corrupt or absent queue snapshot should
// never block startup, it just starts with an empty queue.
func (b *LocalBackend) LoadQueue(ctx context.Context) (*models.PersistedQueue, error) {
	data, err := os.ReadFile(b.queuePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, nil
	}

	var queue models.PersistedQueue
	if _, err := toml.Decode(string(data), &queue); err != nil {
		return nil, nil
	}
	return &queue, nil
}

func tomlMarshal(queue models.PersistedQueue) ([]byte, error) {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(queue); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// CacheSearch upserts a search_cache row keyed by the normalised
// query+filter hash.
func (b *LocalBackend) CacheSearch(ctx context.Context, query, filter string, results models.SearchResults) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to serialise search results: %w", err)
	}
	key := cacheKey(query, filter)
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO search_cache (cache_key, query, service_filter, results_json, cached_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(cache_key) DO UPDATE SET
			query = excluded.query,
			service_filter = excluded.service_filter,
			results_json = excluded.results_json,
			cached_at = excluded.cached_at
	`, key, query, filter, string(payload))
	if err != nil {
		return fmt.Errorf("failed to cache search: %w", err)
	}
	return nil
}

// GetCachedSearch returns a cache hit only if it is younger than ttl.
func (b *LocalBackend) GetCachedSearch(ctx context.Context, query, filter string, ttl time.Duration) (*models.SearchResults, bool, error) {
	key := cacheKey(query, filter)
	var payload string
	var cachedAtSeconds int64
	err := b.db.QueryRowContext(ctx, `
		SELECT results_json, CAST(strftime('%s', cached_at) AS INTEGER)
		FROM search_cache WHERE cache_key = ?
	`, key).Scan(&payload, &cachedAtSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query search cache: %w", err)
	}

	cachedAt := time.Unix(cachedAtSeconds, 0)
	if time.Since(cachedAt) > ttl {
		return nil, false, nil
	}

	var results models.SearchResults
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		return nil, false, fmt.Errorf("failed to deserialise cached search: %w", err)
	}
	return &results, true, nil
}

// PollChanges is always a no-op locally: a single in-process client sees
// its own writes immediately, with nothing remote to reconcile.
func (b *LocalBackend) PollChanges(ctx context.Context) ([]ChangeEvent, error) {
	return nil, nil
}

// SearchHistoryEntry is one recorded query in the search history file.
type SearchHistoryEntry struct {
	Query       string `json:"query"`
	ResultCount int    `json:"result_count"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// SearchHistory is a small ordered, size-capped, case-insensitively
// deduplicated list of past queries, serialised as JSON next to the queue
// snapshot. It has no relational shape worth a table, so it bypasses the
// database entirely and is shared by both storage backends.
type SearchHistory struct {
	path    string
	maxSize int
}

// NewSearchHistory wires a SearchHistory file under configDir, capped at
// maxSize entries.
func NewSearchHistory(configDir string, maxSize int) *SearchHistory {
	if maxSize <= 0 {
		maxSize = 50
	}
	return &SearchHistory{path: filepath.Join(configDir, searchHistoryFile), maxSize: maxSize}
}

func (h *SearchHistory) load() ([]SearchHistoryEntry, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, nil
	}
	var entries []SearchHistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil
	}
	return entries, nil
}

func (h *SearchHistory) save(entries []SearchHistoryEntry) error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialise search history: %w", err)
	}
	return os.WriteFile(h.path, data, 0o644)
}

// Record moves a case-insensitive repeat of query to the front, or
// prepends a new entry, then trims the list to maxSize.
func (h *SearchHistory) Record(query string, resultCount int, timestampMs int64) error {
	entries, err := h.load()
	if err != nil {
		return err
	}

	filtered := entries[:0]
	lower := strings.ToLower(query)
	for _, e := range entries {
		if strings.ToLower(e.Query) != lower {
			filtered = append(filtered, e)
		}
	}

	updated := append([]SearchHistoryEntry{{Query: query, ResultCount: resultCount, TimestampMs: timestampMs}}, filtered...)
	if len(updated) > h.maxSize {
		updated = updated[:h.maxSize]
	}
	return h.save(updated)
}

// List returns the history, most recent first.
func (h *SearchHistory) List() ([]SearchHistoryEntry, error) {
	return h.load()
}

// Clear empties the search history file.
func (h *SearchHistory) Clear() error {
	return h.save(nil)
}
