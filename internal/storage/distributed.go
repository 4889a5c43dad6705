package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/tidewire/federate/internal/models"
)

// KVEntry is one key/value pair returned by a ScanKeys RPC.
type KVEntry struct {
	Key   string
	Value []byte
}

// KVClient is the minimal remote key-value contract the distributed
// backend needs. A real implementation wraps whatever RPC transport a
// deployment's cluster actually speaks; this package fabricates none and
// only depends on this interface.
type KVClient interface {
	WriteKey(ctx context.Context, key string, value []byte) error
	ReadKey(ctx context.Context, key string) ([]byte, bool, error)
	ScanKeys(ctx context.Context, prefix string, limit int) ([]KVEntry, error)
}

// syncState tracks what this client last saw so PollChanges can tell a
// remote mutation from one of its own writes.
type syncState struct {
	lastQueueHash         uint64
	haveQueueHash         bool
	lastHistoryCount      int
	lastHistoryLatestHash uint64
	haveHistoryHash       bool
}

// DistributedBackend implements Backend over a remote key-value service
// under a user-scoped prefix, matching aspen.rs's drift:{user}: layout.
// Dedup, history pruning, and cache TTL enforcement are delegated to the
// server side; this client only issues WriteKey/ReadKey/ScanKeys calls and
// tracks hashes for own-write suppression.
type DistributedBackend struct {
	client KVClient
	prefix string
	mu     sync.Mutex
	sync   syncState
}

// NewDistributedBackend scopes all keys under "drift:{userID}:".
func NewDistributedBackend(client KVClient, userID string) *DistributedBackend {
	return &DistributedBackend{client: client, prefix: fmt.Sprintf("drift:%s:", userID)}
}

func (b *DistributedBackend) key(suffix string) string {
	return b.prefix + suffix
}

func hashBytes(data []byte) uint64 {
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

type historyRecord struct {
	TrackID         string `json:"track_id"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	Album           string `json:"album"`
	DurationSeconds int    `json:"duration_seconds"`
	CoverID         string `json:"cover_art_id,omitempty"`
	Service         string `json:"service"`
	PlayedAtMs      int64  `json:"played_at_ms"`
}

func (r historyRecord) toEntry() models.HistoryEntry {
	return models.HistoryEntry{
		TrackID:         r.TrackID,
		Title:           r.Title,
		Artist:          r.Artist,
		Album:           r.Album,
		DurationSeconds: r.DurationSeconds,
		CoverID:         r.CoverID,
		Service:         models.ServiceType(r.Service),
		PlayedAtMillis:  r.PlayedAtMs,
	}
}

// RecordPlay writes a timestamp-ordered history key. The timestamp is
// zero-padded to 20 digits so a prefix scan returns entries in key order.
func (b *DistributedBackend) RecordPlay(ctx context.Context, entry models.HistoryEntry) error {
	nowMs := entry.PlayedAtMillis
	if nowMs == 0 {
		nowMs = time.Now().UnixMilli()
	}
	key := b.key(fmt.Sprintf("history:%020d", nowMs))
	record := historyRecord{
		TrackID:         entry.TrackID,
		Title:           entry.Title,
		Artist:          entry.Artist,
		Album:           entry.Album,
		DurationSeconds: entry.DurationSeconds,
		CoverID:         entry.CoverID,
		Service:         string(entry.Service),
		PlayedAtMs:      nowMs,
	}
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialise history record: %w", err)
	}
	if err := b.client.WriteKey(ctx, key, value); err != nil {
		return fmt.Errorf("failed to write history key: %w", err)
	}

	b.mu.Lock()
	b.sync.lastHistoryCount++
	b.sync.lastHistoryLatestHash = hashBytes([]byte(key))
	b.sync.haveHistoryHash = true
	b.mu.Unlock()
	return nil
}

// GetHistory scans the history: prefix and returns the most recent limit
// entries. Ordering is enforced client-side since ScanKeys makes no
// ordering guarantee beyond lexical key order.
func (b *DistributedBackend) GetHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = maxHistorySize
	}
	entries, err := b.client.ScanKeys(ctx, b.key("history:"), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan history keys: %w", err)
	}

	var records []models.HistoryEntry
	for _, e := range entries {
		var r historyRecord
		if err := json.Unmarshal(e.Value, &r); err != nil {
			continue
		}
		records = append(records, r.toEntry())
	}

	sortHistoryDescending(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func sortHistoryDescending(entries []models.HistoryEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].PlayedAtMillis > entries[j-1].PlayedAtMillis; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// ClearHistory is not implemented server-side in this client's RPC
// surface; the drift plugin owns retention. Callers that need a hard wipe
// should use the local backend instead.
func (b *DistributedBackend) ClearHistory(ctx context.Context) error {
	return fmt.Errorf("distributed backend does not support clearing history")
}

// SaveQueue writes the whole queue under a single key and records its
// hash so a subsequent PollChanges doesn't treat this write as remote.
func (b *DistributedBackend) SaveQueue(ctx context.Context, queue models.PersistedQueue) error {
	value, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("failed to serialise queue: %w", err)
	}
	hash := hashBytes(value)
	if err := b.client.WriteKey(ctx, b.key("queue"), value); err != nil {
		return fmt.Errorf("failed to write queue key: %w", err)
	}
	b.mu.Lock()
	b.sync.lastQueueHash = hash
	b.sync.haveQueueHash = true
	b.mu.Unlock()
	return nil
}

// LoadQueue reads the queue key, returning (nil, nil) if absent.
func (b *DistributedBackend) LoadQueue(ctx context.Context) (*models.PersistedQueue, error) {
	value, ok, err := b.client.ReadKey(ctx, b.key("queue"))
	if err != nil {
		return nil, fmt.Errorf("failed to read queue key: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var queue models.PersistedQueue
	if err := json.Unmarshal(value, &queue); err != nil {
		return nil, fmt.Errorf("failed to deserialise queue: %w", err)
	}
	return &queue, nil
}

type cachedSearch struct {
	ResultsJSON string `json:"r"`
	CachedAtMs  int64  `json:"t"`
}

// CacheSearch writes the results under search:{hash}. TTL enforcement is
// server-side.
func (b *DistributedBackend) CacheSearch(ctx context.Context, query, filter string, results models.SearchResults) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to serialise search results: %w", err)
	}
	cached := cachedSearch{ResultsJSON: string(resultsJSON), CachedAtMs: time.Now().UnixMilli()}
	value, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to serialise cached search wrapper: %w", err)
	}
	key := b.key("search:" + cacheKey(query, filter))
	if err := b.client.WriteKey(ctx, key, value); err != nil {
		return fmt.Errorf("failed to write search cache key: %w", err)
	}
	return nil
}

// GetCachedSearch reads search:{hash}. A hit that is present is trusted:
// the server-side plugin is the TTL authority, but the ttl parameter still
// guards this client against a key the plugin has not yet reaped.
func (b *DistributedBackend) GetCachedSearch(ctx context.Context, query, filter string, ttl time.Duration) (*models.SearchResults, bool, error) {
	key := b.key("search:" + cacheKey(query, filter))
	value, ok, err := b.client.ReadKey(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read search cache key: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var cached cachedSearch
	if err := json.Unmarshal(value, &cached); err != nil {
		return nil, false, fmt.Errorf("failed to deserialise cached search wrapper: %w", err)
	}
	if time.Since(time.UnixMilli(cached.CachedAtMs)) > ttl {
		return nil, false, nil
	}

	var results models.SearchResults
	if err := json.Unmarshal([]byte(cached.ResultsJSON), &results); err != nil {
		return nil, false, fmt.Errorf("failed to deserialise cached search results: %w", err)
	}
	return &results, true, nil
}

// PollChanges detects remote mutations this client didn't itself make, by
// comparing the live queue hash and the most recent history key's hash
// against what was last seen (whether from a prior poll or this client's
// own write).
func (b *DistributedBackend) PollChanges(ctx context.Context) ([]ChangeEvent, error) {
	var events []ChangeEvent

	if value, ok, err := b.client.ReadKey(ctx, b.key("queue")); err != nil {
		return nil, fmt.Errorf("failed to read queue key: %w", err)
	} else if ok {
		hash := hashBytes(value)
		b.mu.Lock()
		isNew := !b.sync.haveQueueHash || b.sync.lastQueueHash != hash
		if isNew {
			b.sync.lastQueueHash = hash
			b.sync.haveQueueHash = true
		}
		b.mu.Unlock()
		if isNew {
			var queue models.PersistedQueue
			if err := json.Unmarshal(value, &queue); err != nil {
				// A remote write landed mid-write or in a shape this client
				// doesn't understand. Don't surface a half-formed event;
				// the hash is already recorded so the next poll moves on.
			} else {
				events = append(events, ChangeEvent{Kind: QueueChanged, Queue: &queue})
			}
		}
	}

	entries, err := b.client.ScanKeys(ctx, b.key("history:"), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to scan history keys: %w", err)
	}
	if len(entries) > 0 {
		latest := entries[len(entries)-1]
		latestHash := hashBytes([]byte(latest.Key))
		b.mu.Lock()
		isNew := !b.sync.haveHistoryHash || b.sync.lastHistoryLatestHash != latestHash
		if isNew {
			b.sync.lastHistoryLatestHash = latestHash
			b.sync.haveHistoryHash = true
		}
		b.mu.Unlock()
		if isNew {
			full, err := b.GetHistory(ctx, maxHistorySize)
			if err != nil {
				return nil, fmt.Errorf("failed to re-read history page: %w", err)
			}
			events = append(events, ChangeEvent{Kind: HistoryChanged, History: full})
		}
	}

	return events, nil
}
