// Package radio implements the queue-refill state machine embedded in the
// playback controller: given a seed (track, playlist, artist, or album) it
// tops up the live queue with similar tracks whenever it runs low.
package radio

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/shared"
)

// lowWaterMark is the remaining-queue-count threshold that triggers a
// refill.
const lowWaterMark = 2

// radioFetchLimit is how many similar tracks are requested per refill.
const radioFetchLimit = 10

// SeedKind identifies what a Seed is anchored to.
type SeedKind int

const (
	SeedTrack SeedKind = iota
	SeedPlaylist
	SeedArtist
	SeedAlbum
)

// Seed anchors radio mode to a specific entity. Album seeds are synthesized:
// a random track from the album is picked and used as a track seed.
type Seed struct {
	Kind SeedKind
	ID   string
}

// provider is the subset of the multi-service manager the radio engine
// needs to resolve seeds into playable tracks.
type provider interface {
	GetTrackRadio(ctx context.Context, trackID string, limit int) ([]models.Track, error)
	GetArtistRadio(ctx context.Context, artistID string, limit int) ([]models.Track, error)
	GetPlaylistRadio(ctx context.Context, playlistID string, limit int) ([]models.Track, error)
	GetAlbumTracks(ctx context.Context, albumID string) ([]models.Track, error)
	GetStreamURL(ctx context.Context, trackID string) (string, error)
}

// AudioQueue is the live playback queue the engine appends resolved tracks
// to, and polls for how much runway is left before it empties.
type AudioQueue interface {
	RemainingCount(ctx context.Context) (int, error)
	Enqueue(ctx context.Context, track models.Track, streamURL string) error
}

// Engine holds the current seed and a re-entrancy latch so overlapping
// refill checks (the caller polls on every status tick) never race.
type Engine struct {
	mu       sync.Mutex
	seed     *Seed
	fetching atomic.Bool
	provider provider
	queue    AudioQueue
	debug    *shared.DebugLog
}

// New wires a provider (radio-capable reads + stream URL resolution) and
// the live audio queue.
func New(provider provider, queue AudioQueue, debug *shared.DebugLog) *Engine {
	return &Engine{provider: provider, queue: queue, debug: debug}
}

// SetSeed arms radio mode. Passing a nil seed disarms it.
func (e *Engine) SetSeed(seed *Seed) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seed = seed
}

// CurrentSeed returns the active seed, or nil if radio mode is off.
func (e *Engine) CurrentSeed() *Seed {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seed
}

func (e *Engine) debugf(format string, args ...any) {
	if e.debug != nil {
		e.debug.Push(format, args...)
	}
}

// CheckRefill is the refill trigger: call it on every status poll. It is a
// no-op unless a seed is armed, no refill is already in flight, and the
// queue's remaining-track count is at or below the low water mark.
// existingIDs is the set of track ids already present in the live queue,
// used to dedup incoming radio tracks.
func (e *Engine) CheckRefill(ctx context.Context, existingIDs map[string]bool) {
	seed := e.CurrentSeed()
	if seed == nil {
		return
	}
	if !e.fetching.CompareAndSwap(false, true) {
		return
	}
	defer e.fetching.Store(false)

	remaining, err := e.queue.RemainingCount(ctx)
	if err != nil {
		e.debugf("radio: failed to get queue count: %v", err)
		return
	}
	if remaining > lowWaterMark {
		return
	}

	tracks, err := e.resolveSeedTracks(ctx, *seed)
	if err != nil {
		e.debugf("radio: failed to fetch tracks: %v", err)
		return
	}
	if len(tracks) == 0 {
		e.debugf("radio: no similar tracks found")
		return
	}

	var fresh []models.Track
	for _, t := range tracks {
		if !existingIDs[t.ID] {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		e.debugf("radio: all tracks already in queue")
		return
	}

	added := 0
	for _, t := range fresh {
		url, err := e.provider.GetStreamURL(ctx, t.ID)
		if err != nil {
			e.debugf("radio: failed to get stream url for %s: %v", t.Title, err)
			continue
		}
		if err := e.queue.Enqueue(ctx, t, url); err == nil {
			added++
		}
	}
	if added > 0 {
		e.debugf("radio: added %d tracks to queue", added)
	}
}

func (e *Engine) resolveSeedTracks(ctx context.Context, seed Seed) ([]models.Track, error) {
	switch seed.Kind {
	case SeedTrack:
		return e.provider.GetTrackRadio(ctx, seed.ID, radioFetchLimit)
	case SeedPlaylist:
		return e.provider.GetPlaylistRadio(ctx, seed.ID, radioFetchLimit)
	case SeedArtist:
		return e.provider.GetArtistRadio(ctx, seed.ID, radioFetchLimit)
	case SeedAlbum:
		albumTracks, err := e.provider.GetAlbumTracks(ctx, seed.ID)
		if err != nil {
			return nil, err
		}
		if len(albumTracks) == 0 {
			return nil, nil
		}
		picked := albumTracks[rand.Intn(len(albumTracks))]
		return e.provider.GetTrackRadio(ctx, picked.ID, radioFetchLimit)
	default:
		return nil, fmt.Errorf("unknown radio seed kind %d", seed.Kind)
	}
}
