// Package storage provides the two interchangeable persistence backends
// for playback history, the queue snapshot, and the search cache: a local
// embedded store and a distributed key-value store. Callers code against
// the Backend interface and never need to know which one is live.
package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/tidewire/federate/internal/models"
)

// ChangeKind enumerates the events PollChanges can report. Only the
// distributed backend produces them; the local backend's PollChanges
// always returns an empty slice since a single process sees its own
// writes synchronously.
type ChangeKind int

const (
	QueueChanged ChangeKind = iota
	HistoryChanged
)

func (k ChangeKind) String() string {
	switch k {
	case QueueChanged:
		return "queue_changed"
	case HistoryChanged:
		return "history_changed"
	default:
		return "unknown"
	}
}

// ChangeEvent is one entry of a PollChanges result. Exactly one of Queue or
// History is populated, matching Kind. A backend that cannot parse the
// bytes behind a detected change must suppress the event rather than emit
// one with a nil payload.
type ChangeEvent struct {
	Kind    ChangeKind
	Queue   *models.PersistedQueue
	History []models.HistoryEntry
}

// Backend is the contract shared by the local and distributed stores.
type Backend interface {
	RecordPlay(ctx context.Context, entry models.HistoryEntry) error
	GetHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error)
	ClearHistory(ctx context.Context) error

	SaveQueue(ctx context.Context, queue models.PersistedQueue) error
	LoadQueue(ctx context.Context) (*models.PersistedQueue, error)

	CacheSearch(ctx context.Context, query, filter string, results models.SearchResults) error
	// GetCachedSearch returns the cached entry for query/filter if one
	// exists and is younger than ttl. The bool reports whether a live hit
	// was found.
	GetCachedSearch(ctx context.Context, query, filter string, ttl time.Duration) (*models.SearchResults, bool, error)

	// PollChanges reports remote mutations this client did not itself
	// make. The local backend always returns (nil, nil).
	PollChanges(ctx context.Context) ([]ChangeEvent, error)
}

// cacheKey mirrors the original's hash(lower(trim(query)) + "_" + filter)
// scheme, used by both backends so cached entries are interchangeable if a
// deployment ever migrates from one to the other.
func cacheKey(query, filter string) string {
	normalized := strings.ToLower(strings.TrimSpace(query)) + "_" + filter
	return strconv.FormatUint(hashBytes([]byte(normalized)), 16)
}
