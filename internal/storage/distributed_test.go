package storage

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tidewire/federate/internal/models"
)

// fakeKVClient is a trivial in-memory stand-in for a remote key-value
// cluster, enough to exercise DistributedBackend's key layout and
// own-write suppression logic.
type fakeKVClient struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKVClient() *fakeKVClient {
	return &fakeKVClient{data: make(map[string][]byte)}
}

func (c *fakeKVClient) WriteKey(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *fakeKVClient) ReadKey(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeKVClient) ScanKeys(ctx context.Context, prefix string, limit int) ([]KVEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for k := range c.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	entries := make([]KVEntry, len(keys))
	for i, k := range keys {
		entries[i] = KVEntry{Key: k, Value: c.data[k]}
	}
	return entries, nil
}

func TestDistributedRecordPlayAndGetHistory(t *testing.T) {
	client := newFakeKVClient()
	b := NewDistributedBackend(client, "user-1")
	ctx := context.Background()

	e1 := sampleEntry("1")
	e1.PlayedAtMillis = 1000
	e2 := sampleEntry("2")
	e2.PlayedAtMillis = 2000

	if err := b.RecordPlay(ctx, e1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.RecordPlay(ctx, e2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := b.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 || history[0].TrackID != "2" {
		t.Fatalf("expected most recent play first, got %+v", history)
	}
}

func TestDistributedSaveAndLoadQueue(t *testing.T) {
	client := newFakeKVClient()
	b := NewDistributedBackend(client, "user-1")
	ctx := context.Background()

	queue := models.NewPersistedQueue([]models.Track{{ID: "1", Title: "One", Cover: models.NoCoverArt()}}, nil, nil)
	if err := b.SaveQueue(ctx, queue); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := b.LoadQueue(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded == nil || len(loaded.Tracks) != 1 || loaded.Tracks[0].ID != "1" {
		t.Fatalf("unexpected loaded queue: %+v", loaded)
	}
}

func TestDistributedCacheSearchRoundTrip(t *testing.T) {
	client := newFakeKVClient()
	b := NewDistributedBackend(client, "user-1")
	ctx := context.Background()

	results := models.SearchResults{Tracks: []models.Track{{ID: "1", Title: "Hit"}}}
	if err := b.CacheSearch(ctx, "query", "all", results); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hit, ok, err := b.GetCachedSearch(ctx, "query", "all", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || len(hit.Tracks) != 1 {
		t.Fatalf("expected a cache hit, got %+v ok=%v", hit, ok)
	}
}

func TestDistributedPollChangesSuppressesOwnWrites(t *testing.T) {
	client := newFakeKVClient()
	b := NewDistributedBackend(client, "user-1")
	ctx := context.Background()

	queue := models.NewPersistedQueue([]models.Track{{ID: "1", Cover: models.NoCoverArt()}}, nil, nil)
	if err := b.SaveQueue(ctx, queue); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := sampleEntry("1")
	entry.PlayedAtMillis = 1000
	if err := b.RecordPlay(ctx, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := b.PollChanges(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no change events for this client's own writes, got %+v", events)
	}
}

func TestDistributedPollChangesDetectsRemoteQueueWrite(t *testing.T) {
	client := newFakeKVClient()
	writer := NewDistributedBackend(client, "user-1")
	reader := NewDistributedBackend(client, "user-1")
	ctx := context.Background()

	queue := models.NewPersistedQueue([]models.Track{{ID: "1", Cover: models.NoCoverArt()}}, nil, nil)
	if err := writer.SaveQueue(ctx, queue); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := reader.PollChanges(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var found *ChangeEvent
	for i, e := range events {
		if e.Kind == QueueChanged {
			found = &events[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a remote client to see the queue change, got %+v", events)
	}
	if found.Queue == nil || len(found.Queue.Tracks) != 1 || found.Queue.Tracks[0].ID != "1" {
		t.Fatalf("expected the event to carry the parsed queue, got %+v", found.Queue)
	}

	events, err = reader.PollChanges(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected the second poll to see no further change, got %+v", events)
	}
}

func TestDistributedPollChangesDetectsRemoteHistoryWrite(t *testing.T) {
	client := newFakeKVClient()
	writer := NewDistributedBackend(client, "user-1")
	reader := NewDistributedBackend(client, "user-1")
	ctx := context.Background()

	entry := sampleEntry("1")
	entry.PlayedAtMillis = 1000
	if err := writer.RecordPlay(ctx, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := reader.PollChanges(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var found *ChangeEvent
	for i, e := range events {
		if e.Kind == HistoryChanged {
			found = &events[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a remote client to see the history change, got %+v", events)
	}
	if len(found.History) != 1 || found.History[0].TrackID != "1" {
		t.Fatalf("expected the event to carry the re-read history page, got %+v", found.History)
	}
}

func TestDistributedPollChangesSuppressesUnparseableQueue(t *testing.T) {
	client := newFakeKVClient()
	b := NewDistributedBackend(client, "user-1")
	ctx := context.Background()

	if err := client.WriteKey(ctx, b.key("queue"), []byte("not json")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := b.PollChanges(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, e := range events {
		if e.Kind == QueueChanged {
			t.Fatalf("expected an unparseable queue write to be suppressed, got %+v", e)
		}
	}
}
