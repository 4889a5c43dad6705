package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/shared"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleEntry(trackID string) models.HistoryEntry {
	return models.HistoryEntry{
		TrackID:         trackID,
		Title:           "Song " + trackID,
		Artist:          "Artist",
		Album:           "Album",
		DurationSeconds: 180,
		Service:         models.ServiceTidal,
	}
}

func TestRecordPlayAndGetHistory(t *testing.T) {
	b := NewLocalBackend(setupTestDB(t), t.TempDir())
	ctx := context.Background()

	if err := b.RecordPlay(ctx, sampleEntry("1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.RecordPlay(ctx, sampleEntry("2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := b.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].TrackID != "2" {
		t.Fatalf("expected most recent play first, got %+v", history[0])
	}
}

func TestRecordPlaySuppressesDuplicateWithinWindow(t *testing.T) {
	b := NewLocalBackend(setupTestDB(t), t.TempDir())
	ctx := context.Background()

	if err := b.RecordPlay(ctx, sampleEntry("1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.RecordPlay(ctx, sampleEntry("1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := b.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected duplicate play within the dedup window to be suppressed, got %d entries", len(history))
	}
}

func TestClearHistory(t *testing.T) {
	b := NewLocalBackend(setupTestDB(t), t.TempDir())
	ctx := context.Background()

	if err := b.RecordPlay(ctx, sampleEntry("1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.ClearHistory(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := b.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected history to be empty after clear, got %d", len(history))
	}
}

func TestSaveAndLoadQueue(t *testing.T) {
	b := NewLocalBackend(setupTestDB(t), t.TempDir())
	ctx := context.Background()

	tracks := []models.Track{
		{ID: "1", Title: "One", Artist: "A", Album: "X", Cover: models.NoCoverArt()},
		{ID: "2", Title: "Two", Artist: "A", Album: "X", Cover: models.NoCoverArt()},
	}
	pos := 1
	queue := models.NewPersistedQueue(tracks, &pos, nil)

	if err := b.SaveQueue(ctx, queue); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := b.LoadQueue(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a loaded queue, got nil")
	}
	if len(loaded.Tracks) != 2 || loaded.Tracks[1].ID != "2" {
		t.Fatalf("unexpected loaded queue: %+v", loaded)
	}
	if loaded.CurrentPosition == nil || *loaded.CurrentPosition != 1 {
		t.Fatalf("expected current position 1, got %+v", loaded.CurrentPosition)
	}
}

func TestLoadQueueMissingFileReturnsNil(t *testing.T) {
	b := NewLocalBackend(setupTestDB(t), t.TempDir())
	loaded, err := b.LoadQueue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil queue when no snapshot exists, got %+v", loaded)
	}
}

func TestCacheSearchRoundTripAndTTL(t *testing.T) {
	b := NewLocalBackend(setupTestDB(t), t.TempDir())
	ctx := context.Background()

	results := models.SearchResults{Tracks: []models.Track{{ID: "1", Title: "Hit"}}}
	if err := b.CacheSearch(ctx, "  Query  ", "all", results); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hit, ok, err := b.GetCachedSearch(ctx, "query", "all", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit for the normalised query")
	}
	if len(hit.Tracks) != 1 || hit.Tracks[0].ID != "1" {
		t.Fatalf("unexpected cached results: %+v", hit)
	}

	_, expired, err := b.GetCachedSearch(ctx, "query", "all", -time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired {
		t.Fatal("expected a negative ttl to always miss")
	}
}

func TestSearchHistoryRecordDedupAndTrim(t *testing.T) {
	h := NewSearchHistory(t.TempDir(), 3)

	if err := h.Record("hello", 5, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Record("world", 2, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Record("HELLO", 7, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := h.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected case-insensitive dedup to leave 2 entries, got %d", len(entries))
	}
	if entries[0].Query != "HELLO" || entries[0].ResultCount != 7 {
		t.Fatalf("expected the repeat to move to the front with its new count, got %+v", entries[0])
	}
}

func TestSearchHistoryTrimsToMaxSize(t *testing.T) {
	h := NewSearchHistory(t.TempDir(), 2)

	for i, q := range []string{"a", "b", "c"} {
		if err := h.Record(q, i, int64(i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := h.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected history capped at 2 entries, got %d", len(entries))
	}
	if entries[0].Query != "c" {
		t.Fatalf("expected most recent query first, got %+v", entries[0])
	}
}
