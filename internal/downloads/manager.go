package downloads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/tidewire/federate/internal/eventbus"
	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/musicsvc"
	"github.com/tidewire/federate/internal/shared"
)

// progressChunk is how often, in bytes, an in-flight download reports
// cumulative progress.
const progressChunk = 256 * 1024

// Outcome reports what a single ProcessNext call did.
type Outcome int

const (
	NoWork Outcome = iota
	Started
)

// streamResolver is the subset of musicsvc.Manager the download manager
// needs; satisfied by *musicsvc.Manager.
type streamResolver interface {
	GetStreamURL(ctx context.Context, trackID string) (string, error)
	GetCoverURL(cover models.CoverArt, size int) string
}

// Manager drains the persisted download queue under a bounded semaphore,
// streaming each track to disk, tagging it, and publishing progress on an
// event bus. Grounded on the async DownloadManager in the source this was
// ported from: a permit-gated process_next driver called repeatedly by the
// application loop rather than a self-driving worker pool.
type Manager struct {
	store      *Store
	services   streamResolver
	root       string
	sem        *semaphore.Weighted
	bus        *eventbus.Bus
	paused     atomic.Bool
	httpClient *http.Client
	logger     *log.Logger
	debug      *shared.DebugLog
}

// NewManager wires a Store, a stream-URL resolver (the multi-service
// manager), a download root directory, and a permit width.
func NewManager(store *Store, services streamResolver, root string, width int, bus *eventbus.Bus, logger *log.Logger, debug *shared.DebugLog) *Manager {
	if width <= 0 {
		width = 2
	}
	return &Manager{
		store:      store,
		services:   services,
		root:       root,
		sem:        semaphore.NewWeighted(int64(width)),
		bus:        bus,
		httpClient: &http.Client{},
		logger:     logger,
		debug:      debug,
	}
}

func (m *Manager) publish(kind eventbus.Kind, data any) {
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Kind: kind, Data: data})
	}
}

// QueueTrack enqueues one track and emits a single QueueUpdated event.
func (m *Manager) QueueTrack(t models.Track) error {
	if err := m.store.QueueTrack(t); err != nil {
		return err
	}
	m.publish(eventbus.QueueUpdated, nil)
	return nil
}

// QueueTracks enqueues many tracks under one QueueUpdated event regardless
// of how many succeed.
func (m *Manager) QueueTracks(tracks []models.Track) (int, error) {
	count := 0
	for _, t := range tracks {
		if err := m.store.QueueTrack(t); err == nil {
			count++
		}
	}
	m.publish(eventbus.QueueUpdated, nil)
	return count, nil
}

// SyncPlaylist queues every not-yet-linked track, then emits PlaylistSynced
// followed by QueueUpdated.
func (m *Manager) SyncPlaylist(playlistID, name string, tracks []models.Track) (int, error) {
	newCount, err := m.store.SyncPlaylist(playlistID, name, tracks)
	if err != nil {
		return 0, err
	}
	m.publish(eventbus.PlaylistSynced, eventbus.PlaylistSyncedData{
		PlaylistID: playlistID,
		Name:       name,
		NewTracks:  newCount,
	})
	m.publish(eventbus.QueueUpdated, nil)
	return newCount, nil
}

func (m *Manager) GetSyncedPlaylists() ([]models.SyncedPlaylist, error) { return m.store.GetSyncedPlaylists() }
func (m *Manager) IsPlaylistSynced(playlistID string) bool              { return m.store.IsPlaylistSynced(playlistID) }

// RemoveSyncedPlaylist drops the sync record and emits QueueUpdated.
func (m *Manager) RemoveSyncedPlaylist(playlistID string) error {
	if err := m.store.RemoveSyncedPlaylist(playlistID); err != nil {
		return err
	}
	m.publish(eventbus.QueueUpdated, nil)
	return nil
}

// Pause/Resume flip the admission flag; in-flight downloads always run to
// completion.
func (m *Manager) Pause()  { m.paused.Store(true) }
func (m *Manager) Resume() { m.paused.Store(false) }

// Counts returns (pending+downloading, completed, failed).
func (m *Manager) Counts() (int, int, int, error) { return m.store.Counts() }

// GetAllDownloads returns every download record, in-flight work first.
func (m *Manager) GetAllDownloads() ([]models.DownloadRecord, error) { return m.store.GetAll() }

// RetryFailed resets a failed record back to pending and emits QueueUpdated.
func (m *Manager) RetryFailed(trackID string) error {
	if err := m.store.RetryFailed(trackID); err != nil {
		return err
	}
	m.publish(eventbus.QueueUpdated, nil)
	return nil
}

// Delete removes a download's database record and, best-effort, its file.
// A missing file is treated as success. Emits QueueUpdated.
func (m *Manager) Delete(trackID string) error {
	path, err := m.store.Delete(trackID)
	if err != nil {
		return err
	}
	if path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	m.publish(eventbus.QueueUpdated, nil)
	return nil
}

// ProcessNext is the single scheduling step. It never blocks waiting for a
// download to finish: on finding pending work it spawns the transfer in the
// background and returns immediately, so the caller can poll it on every
// tick of the application loop and let the semaphore throttle how many
// downloads actually run at once.
func (m *Manager) ProcessNext(ctx context.Context) (Outcome, error) {
	if m.paused.Load() {
		return NoWork, nil
	}

	if !m.sem.TryAcquire(1) {
		return NoWork, nil
	}

	pending, err := m.store.GetPending()
	if err != nil {
		m.sem.Release(1)
		return NoWork, err
	}
	if len(pending) == 0 {
		m.sem.Release(1)
		return NoWork, nil
	}

	record := pending[0]

	// Claim the record immediately so a second concurrent ProcessNext call
	// (another permit, same tick) can't pick the same pending row before
	// this one's first real progress update lands.
	if err := m.store.UpdateProgress(record.TrackID, 0, 0); err != nil {
		m.sem.Release(1)
		return NoWork, err
	}

	m.publish(eventbus.DownloadStarted, eventbus.DownloadProgressData{TrackID: record.TrackID, Title: record.Title})

	go m.runDownload(ctx, record)

	return Started, nil
}

func (m *Manager) runDownload(ctx context.Context, record models.DownloadRecord) {
	defer m.sem.Release(1)

	path, err := m.downloadTrack(ctx, record)
	if err != nil {
		if m.debug != nil {
			m.debug.Push("download failed for %s: %v", record.Title, err)
		}
		if mErr := m.store.MarkFailed(record.TrackID, err.Error()); mErr != nil && m.logger != nil {
			m.logger.Error("failed to record download failure", "track_id", record.TrackID, "err", mErr)
		}
		m.publish(eventbus.DownloadFailed, eventbus.DownloadProgressData{TrackID: record.TrackID, Title: record.Title, Err: err.Error()})
		return
	}

	track := models.Track{ID: record.TrackID, Title: record.Title, Artist: record.Artist, Album: record.Album}
	var cover *coverArt
	if hasEmbeddedArt(path) {
		if m.debug != nil {
			m.debug.Push("skipping cover fetch for %s: stream already embeds art", record.Title)
		}
	} else {
		cover = m.resolveCover(record)
	}
	if err := tagFile(path, track, cover, m.logger); err != nil && m.debug != nil {
		m.debug.Push("tagging failed for %s: %v", record.Title, err)
	}

	if err := m.store.MarkCompleted(record.TrackID, path); err != nil && m.logger != nil {
		m.logger.Error("failed to record download completion", "track_id", record.TrackID, "err", err)
	}
	m.publish(eventbus.DownloadCompleted, eventbus.DownloadProgressData{TrackID: record.TrackID, Title: record.Title, FilePath: path})
}

func (m *Manager) resolveCover(record models.DownloadRecord) *coverArt {
	if record.CoverID == "" {
		return nil
	}
	var cover models.CoverArt
	if strings.HasPrefix(record.CoverID, "http") {
		cover = models.URLCoverArt(record.CoverID)
	} else {
		cover = models.ServiceCoverArt(musicsvc.DetectService(record.TrackID), record.CoverID)
	}
	url := m.services.GetCoverURL(cover, 640)
	if url == "" {
		return nil
	}
	resp, err := m.httpClient.Get(url)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return nil
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return &coverArt{data: data, mime: mime}
}

func (m *Manager) downloadTrack(ctx context.Context, record models.DownloadRecord) (string, error) {
	streamURL, err := m.services.GetStreamURL(ctx, record.TrackID)
	if err != nil {
		return "", fmt.Errorf("failed to get stream url: %w", err)
	}

	path := m.downloadPath(record)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("stream request failed with status %d", resp.StatusCode)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	total := resp.ContentLength
	writer := &progressWriter{
		dst: file,
		onProgress: func(downloaded int64) {
			if err := m.store.UpdateProgress(record.TrackID, downloaded, total); err != nil && m.logger != nil {
				m.logger.Error("failed to persist progress", "track_id", record.TrackID, "err", err)
			}
			m.publish(eventbus.DownloadProgress, eventbus.DownloadProgressData{
				TrackID: record.TrackID, Title: record.Title, ProgressBytes: downloaded, TotalBytes: total,
			})
		},
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return path, nil
}

func (m *Manager) downloadPath(record models.DownloadRecord) string {
	artist := shared.SanitizeFilename(record.Artist)
	album := shared.SanitizeFilename(record.Album)
	title := shared.SanitizeFilename(record.Title)
	return filepath.Join(m.root, artist, album, title+".flac")
}

// progressWriter wraps an io.Writer, calling onProgress every time
// cumulative bytes cross a progressChunk boundary.
type progressWriter struct {
	dst         io.Writer
	written     int64
	sinceReport int64
	onProgress  func(downloaded int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.written += int64(n)
	w.sinceReport += int64(n)
	if w.sinceReport >= progressChunk {
		w.sinceReport = 0
		if w.onProgress != nil {
			w.onProgress(w.written)
		}
	}
	return n, err
}

// GetCacheSize reports total bytes used by the download root.
func (m *Manager) GetCacheSize() (int64, error) {
	if _, err := os.Stat(m.root); os.IsNotExist(err) {
		return 0, nil
	}
	var total int64
	err := calculateDirSize(m.root, &total)
	return total, err
}

func calculateDirSize(dir string, total *int64) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := calculateDirSize(path, total); err != nil {
				return err
			}
			continue
		}
		info, err := entry.Info()
		if err == nil {
			*total += info.Size()
		}
	}
	return nil
}

// ClearAllDownloads wipes every file under the download root and clears
// completed records from the database, then emits QueueUpdated. In-flight
// or pending records are left in the database, matching the maintenance
// command's file-versus-row scope.
func (m *Manager) ClearAllDownloads() error {
	if _, err := os.Stat(m.root); err == nil {
		if err := os.RemoveAll(m.root); err != nil {
			return fmt.Errorf("failed to clear download directory: %w", err)
		}
	}
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return fmt.Errorf("failed to recreate download directory: %w", err)
	}
	if _, err := m.store.ClearCompleted(); err != nil {
		return err
	}
	m.publish(eventbus.QueueUpdated, nil)
	return nil
}
