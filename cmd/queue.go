package main

import (
	"context"
	"sync"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/musicsvc"
	"github.com/tidewire/federate/internal/storage"
)

// localQueue stands in for the external playback daemon's live queue (the
// `mpd`/`playback` collaborator named in the configuration contract, §6):
// an in-memory, position-tracked track list the radio engine can top up,
// mirrored to the storage backend so a restart resumes where it left off.
// Audio decoding and rendering stay out of scope; this only tracks what's
// queued and at what position.
type localQueue struct {
	mu      sync.Mutex
	backend storage.Backend
	tracks  []models.Track
	pos     int
}

func newLocalQueue(backend storage.Backend) *localQueue {
	return &localQueue{backend: backend}
}

// RemainingCount implements radio.AudioQueue.
func (q *localQueue) RemainingCount(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	remaining := len(q.tracks) - q.pos
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Enqueue implements radio.AudioQueue. The stream URL is not persisted: it
// is short-lived, and Restore rebuilds only the track list and position.
func (q *localQueue) Enqueue(ctx context.Context, track models.Track, streamURL string) error {
	q.mu.Lock()
	q.tracks = append(q.tracks, track)
	q.mu.Unlock()
	return q.persist(ctx)
}

// ExistingIDs returns the set of track ids already queued, for radio refill
// dedup.
func (q *localQueue) ExistingIDs() map[string]bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make(map[string]bool, len(q.tracks))
	for _, t := range q.tracks {
		ids[t.ID] = true
	}
	return ids
}

// List returns a snapshot of the queued tracks in order.
func (q *localQueue) List() []models.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Advance moves the playback position forward by one, clamped to the queue
// length.
func (q *localQueue) Advance(ctx context.Context) error {
	q.mu.Lock()
	if q.pos < len(q.tracks) {
		q.pos++
	}
	q.mu.Unlock()
	return q.persist(ctx)
}

func (q *localQueue) persist(ctx context.Context) error {
	if q.backend == nil {
		return nil
	}
	q.mu.Lock()
	tracks := make([]models.Track, len(q.tracks))
	copy(tracks, q.tracks)
	pos := q.pos
	q.mu.Unlock()
	return q.backend.SaveQueue(ctx, models.NewPersistedQueue(tracks, &pos, nil))
}

// Restore reloads the queue from the last persisted snapshot, tagging each
// track's service by id shape since the snapshot doesn't carry one.
func (q *localQueue) Restore(ctx context.Context) error {
	if q.backend == nil {
		return nil
	}
	persisted, err := q.backend.LoadQueue(ctx)
	if err != nil || persisted == nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = q.tracks[:0]
	for _, pt := range persisted.Tracks {
		q.tracks = append(q.tracks, pt.ToTrack(musicsvc.DetectService(pt.ID)))
	}
	if persisted.CurrentPosition != nil {
		q.pos = *persisted.CurrentPosition
	}
	return nil
}
