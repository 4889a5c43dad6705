package downloads

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/tidewire/federate/internal/eventbus"
	"github.com/tidewire/federate/internal/models"
)

type fakeResolver struct {
	streamURL string
	streamErr error
	coverURL  string
}

func (f *fakeResolver) GetStreamURL(ctx context.Context, trackID string) (string, error) {
	return f.streamURL, f.streamErr
}

func (f *fakeResolver) GetCoverURL(cover models.CoverArt, size int) string {
	return f.coverURL
}

func waitForOutcome(t *testing.T, sub <-chan eventbus.Event, kind eventbus.Kind, timeout time.Duration) eventbus.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case evt := <-sub:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

func TestProcessNextNoWorkOnEmptyQueue(t *testing.T) {
	store := NewStore(setupTestDB(t))
	mgr := NewManager(store, &fakeResolver{}, t.TempDir(), 2, nil, nil, nil)

	outcome, err := mgr.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != NoWork {
		t.Fatalf("expected NoWork on empty queue, got %v", outcome)
	}
}

func TestProcessNextDownloadsFileAndMarksCompleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not-real-flac-bytes"))
	}))
	defer server.Close()

	store := NewStore(setupTestDB(t))
	bus := eventbus.New()
	sub, unsub := bus.Subscribe()
	defer unsub()

	root := t.TempDir()
	mgr := NewManager(store, &fakeResolver{streamURL: server.URL}, root, 2, bus, nil, nil)

	track := sampleTrack("1")
	if err := mgr.QueueTrack(track); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := mgr.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Started {
		t.Fatalf("expected Started, got %v", outcome)
	}

	evt := waitForOutcome(t, sub, eventbus.DownloadCompleted, 2*time.Second)
	data := evt.Data.(eventbus.DownloadProgressData)
	if data.TrackID != "1" {
		t.Fatalf("expected completed event for track 1, got %+v", data)
	}
	if _, err := os.Stat(data.FilePath); err != nil {
		t.Fatalf("expected downloaded file to exist at %s: %v", data.FilePath, err)
	}

	_, completed, _, err := store.Counts()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected 1 completed record, got %d", completed)
	}
}

func TestProcessNextMarksFailedOnStreamError(t *testing.T) {
	store := NewStore(setupTestDB(t))
	bus := eventbus.New()
	sub, unsub := bus.Subscribe()
	defer unsub()

	mgr := NewManager(store, &fakeResolver{streamErr: context.DeadlineExceeded}, t.TempDir(), 2, bus, nil, nil)
	if err := mgr.QueueTrack(sampleTrack("1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := mgr.ProcessNext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForOutcome(t, sub, eventbus.DownloadFailed, 2*time.Second)

	_, _, failed, err := store.Counts()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 failed record, got %d", failed)
	}
}

func TestProcessNextRespectsPause(t *testing.T) {
	store := NewStore(setupTestDB(t))
	mgr := NewManager(store, &fakeResolver{}, t.TempDir(), 2, nil, nil, nil)
	if err := mgr.QueueTrack(sampleTrack("1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mgr.Pause()
	outcome, err := mgr.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != NoWork {
		t.Fatalf("expected NoWork while paused, got %v", outcome)
	}

	mgr.Resume()
	outcome, err = mgr.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Started {
		t.Fatalf("expected Started after resume, got %v", outcome)
	}
}

// blockingResolver holds GetStreamURL open until release is closed, so a
// test can keep permits checked out across several ProcessNext calls.
type blockingResolver struct {
	release chan struct{}
}

func (b *blockingResolver) GetStreamURL(ctx context.Context, trackID string) (string, error) {
	<-b.release
	return "", context.DeadlineExceeded
}

func (b *blockingResolver) GetCoverURL(cover models.CoverArt, size int) string { return "" }

func TestProcessNextBoundedConcurrency(t *testing.T) {
	store := NewStore(setupTestDB(t))
	resolver := &blockingResolver{release: make(chan struct{})}
	mgr := NewManager(store, resolver, t.TempDir(), 2, nil, nil, nil)

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		if err := mgr.QueueTrack(sampleTrack(id)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	outcomes := make([]Outcome, 5)
	for i := 0; i < 5; i++ {
		outcome, err := mgr.ProcessNext(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		outcomes[i] = outcome
	}
	close(resolver.release)

	started := 0
	for _, o := range outcomes {
		if o == Started {
			started++
		}
	}
	if started != 2 {
		t.Fatalf("expected exactly 2 admitted downloads under a width-2 semaphore, got %d", started)
	}
}
