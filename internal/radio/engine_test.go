package radio

import (
	"context"
	"testing"

	"github.com/tidewire/federate/internal/models"
)

type fakeProvider struct {
	trackRadio    []models.Track
	artistRadio   []models.Track
	playlistRadio []models.Track
	albumTracks   []models.Track
	streamErr     map[string]bool
	trackRadioErr error
}

func (f *fakeProvider) GetTrackRadio(ctx context.Context, trackID string, limit int) ([]models.Track, error) {
	if f.trackRadioErr != nil {
		return nil, f.trackRadioErr
	}
	return f.trackRadio, nil
}
func (f *fakeProvider) GetArtistRadio(ctx context.Context, artistID string, limit int) ([]models.Track, error) {
	return f.artistRadio, nil
}
func (f *fakeProvider) GetPlaylistRadio(ctx context.Context, playlistID string, limit int) ([]models.Track, error) {
	return f.playlistRadio, nil
}
func (f *fakeProvider) GetAlbumTracks(ctx context.Context, albumID string) ([]models.Track, error) {
	return f.albumTracks, nil
}
func (f *fakeProvider) GetStreamURL(ctx context.Context, trackID string) (string, error) {
	if f.streamErr != nil && f.streamErr[trackID] {
		return "", context.DeadlineExceeded
	}
	return "stream://" + trackID, nil
}

type fakeQueue struct {
	remaining int
	enqueued  []models.Track
}

func (q *fakeQueue) RemainingCount(ctx context.Context) (int, error) { return q.remaining, nil }
func (q *fakeQueue) Enqueue(ctx context.Context, track models.Track, streamURL string) error {
	q.enqueued = append(q.enqueued, track)
	return nil
}

func TestCheckRefillSkipsWithoutSeed(t *testing.T) {
	provider := &fakeProvider{trackRadio: []models.Track{{ID: "a"}}}
	queue := &fakeQueue{remaining: 0}
	e := New(provider, queue, nil)

	e.CheckRefill(context.Background(), map[string]bool{})

	if len(queue.enqueued) != 0 {
		t.Fatalf("expected no tracks enqueued without a seed, got %d", len(queue.enqueued))
	}
}

func TestCheckRefillSkipsAboveLowWaterMark(t *testing.T) {
	provider := &fakeProvider{trackRadio: []models.Track{{ID: "a"}}}
	queue := &fakeQueue{remaining: 5}
	e := New(provider, queue, nil)
	e.SetSeed(&Seed{Kind: SeedTrack, ID: "seed-1"})

	e.CheckRefill(context.Background(), map[string]bool{})

	if len(queue.enqueued) != 0 {
		t.Fatalf("expected no refill above the low water mark, got %d enqueued", len(queue.enqueued))
	}
}

func TestCheckRefillEnqueuesDedupedTracks(t *testing.T) {
	provider := &fakeProvider{trackRadio: []models.Track{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}}
	queue := &fakeQueue{remaining: 1}
	e := New(provider, queue, nil)
	e.SetSeed(&Seed{Kind: SeedTrack, ID: "seed-1"})

	e.CheckRefill(context.Background(), map[string]bool{"a": true})

	if len(queue.enqueued) != 1 || queue.enqueued[0].ID != "b" {
		t.Fatalf("expected only track b to be enqueued, got %+v", queue.enqueued)
	}
}

func TestCheckRefillSkipsTrackOnStreamURLFailure(t *testing.T) {
	provider := &fakeProvider{
		trackRadio: []models.Track{{ID: "a"}, {ID: "b"}},
		streamErr:  map[string]bool{"a": true},
	}
	queue := &fakeQueue{remaining: 0}
	e := New(provider, queue, nil)
	e.SetSeed(&Seed{Kind: SeedTrack, ID: "seed-1"})

	e.CheckRefill(context.Background(), map[string]bool{})

	if len(queue.enqueued) != 1 || queue.enqueued[0].ID != "b" {
		t.Fatalf("expected only track b to survive the stream url failure, got %+v", queue.enqueued)
	}
}

func TestCheckRefillAlbumSeedSynthesizesFromTrack(t *testing.T) {
	provider := &fakeProvider{
		albumTracks: []models.Track{{ID: "x"}, {ID: "y"}, {ID: "z"}},
		trackRadio:  []models.Track{{ID: "similar-1"}},
	}
	queue := &fakeQueue{remaining: 0}
	e := New(provider, queue, nil)
	e.SetSeed(&Seed{Kind: SeedAlbum, ID: "album-1"})

	e.CheckRefill(context.Background(), map[string]bool{})

	if len(queue.enqueued) != 1 || queue.enqueued[0].ID != "similar-1" {
		t.Fatalf("expected album radio to synthesize from a track seed, got %+v", queue.enqueued)
	}
}

func TestCheckRefillReentrancyLatch(t *testing.T) {
	provider := &fakeProvider{trackRadio: []models.Track{{ID: "a"}}}
	queue := &fakeQueue{remaining: 0}
	e := New(provider, queue, nil)
	e.SetSeed(&Seed{Kind: SeedTrack, ID: "seed-1"})

	e.fetching.Store(true)
	e.CheckRefill(context.Background(), map[string]bool{})

	if len(queue.enqueued) != 0 {
		t.Fatalf("expected refill to be skipped while already fetching, got %d enqueued", len(queue.enqueued))
	}
}
