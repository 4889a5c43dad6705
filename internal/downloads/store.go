// Package downloads implements the concurrent Download Manager: a bounded
// semaphore-gated queue drainer over a SQLite-backed persisted queue, with
// playlist-sync tracking and format-dispatched file tagging.
//
// There is no operation that cancels a download in flight: Pause only stops
// new downloads from being admitted, and a transfer already started runs to
// completion or failure.
package downloads

import (
	"database/sql"
	"fmt"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/repositories"
)

// Store is the downloads/synced_playlists/playlist_tracks persistence
// layer, grounded on the original download_db.rs query shapes.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-migrated database handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// QueueTrack inserts a pending DownloadRecord for track, ignoring a track
// already present (re-queuing an existing id is a no-op, not an error).
func (s *Store) QueueTrack(t models.Track) error {
	sequence, err := repositories.NextSequence(s.db, "downloads")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	coverID := coverIDOf(t)
	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO downloads
			(track_id, sequence, title, artist, album, duration_seconds, cover_id, status, progress_bytes, total_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, 0)`,
		t.ID, sequence, t.Title, t.Artist, t.Album, t.DurationSeconds, coverID,
	)
	if err != nil {
		return fmt.Errorf("failed to queue download: %w", err)
	}
	return nil
}

func coverIDOf(t models.Track) string {
	switch t.Cover.Kind {
	case models.CoverArtServiceID:
		return t.Cover.ID
	case models.CoverArtURL:
		return t.Cover.URL
	default:
		return ""
	}
}

// GetPending returns pending records ordered oldest-first by updated_at, so
// process_next always picks up the longest-waiting download.
func (s *Store) GetPending() ([]models.DownloadRecord, error) {
	return s.getByStatus(models.StatusPending)
}

func (s *Store) getByStatus(status models.DownloadStatus) ([]models.DownloadRecord, error) {
	rows, err := s.db.Query(
		`SELECT track_id, sequence, title, artist, album, duration_seconds, cover_id,
				file_path, status, progress_bytes, total_bytes, error_message
		 FROM downloads WHERE status = ? ORDER BY updated_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads by status: %w", err)
	}
	defer rows.Close()
	return scanDownloadRows(rows)
}

// GetAll returns every record, downloading/pending/paused/failed ahead of
// completed, newest-updated first within each bucket.
func (s *Store) GetAll() ([]models.DownloadRecord, error) {
	rows, err := s.db.Query(
		`SELECT track_id, sequence, title, artist, album, duration_seconds, cover_id,
				file_path, status, progress_bytes, total_bytes, error_message
		 FROM downloads
		 ORDER BY
			CASE status
				WHEN 'downloading' THEN 1
				WHEN 'pending' THEN 2
				WHEN 'paused' THEN 3
				WHEN 'failed' THEN 4
				WHEN 'completed' THEN 5
			END,
			updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all downloads: %w", err)
	}
	defer rows.Close()
	return scanDownloadRows(rows)
}

func scanDownloadRows(rows *sql.Rows) ([]models.DownloadRecord, error) {
	var out []models.DownloadRecord
	for rows.Next() {
		var rec models.DownloadRecord
		var status string
		var coverID, filePath, errMsg sql.NullString
		if err := rows.Scan(&rec.TrackID, &rec.Sequence, &rec.Title, &rec.Artist, &rec.Album,
			&rec.DurationSeconds, &coverID, &filePath, &status, &rec.ProgressBytes, &rec.TotalBytes, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan download row: %w", err)
		}
		rec.CoverID = coverID.String
		rec.FilePath = filePath.String
		rec.ErrorMessage = errMsg.String
		parsed, err := models.ParseDownloadStatus(status)
		if err != nil {
			return nil, err
		}
		rec.Status = parsed
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateProgress writes cumulative progress for an in-flight download.
func (s *Store) UpdateProgress(trackID string, downloaded, total int64) error {
	_, err := s.db.Exec(
		`UPDATE downloads SET progress_bytes = ?, total_bytes = ?, status = 'downloading', updated_at = CURRENT_TIMESTAMP WHERE track_id = ?`,
		downloaded, total, trackID)
	return err
}

// MarkCompleted finalizes a successful download.
func (s *Store) MarkCompleted(trackID, filePath string) error {
	_, err := s.db.Exec(
		`UPDATE downloads SET status = 'completed', file_path = ?, error_message = NULL, updated_at = CURRENT_TIMESTAMP WHERE track_id = ?`,
		filePath, trackID)
	return err
}

// MarkFailed records the error string and flips status to failed.
func (s *Store) MarkFailed(trackID, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE downloads SET status = 'failed', error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE track_id = ?`,
		errMsg, trackID)
	return err
}

// RetryFailed resets a failed record to pending with progress and error
// cleared. It is a no-op (affects zero rows) for any other status.
func (s *Store) RetryFailed(trackID string) error {
	_, err := s.db.Exec(
		`UPDATE downloads
		 SET status = 'pending', progress_bytes = 0, total_bytes = 0, error_message = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE track_id = ? AND status = 'failed'`, trackID)
	return err
}

// GetFilePath returns the stored file path, or "" if never downloaded.
func (s *Store) GetFilePath(trackID string) (string, error) {
	var path sql.NullString
	err := s.db.QueryRow(`SELECT file_path FROM downloads WHERE track_id = ?`, trackID).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return path.String, nil
}

// Delete removes a download's row and returns its last known file path so
// the caller can attempt file removal.
func (s *Store) Delete(trackID string) (string, error) {
	path, err := s.GetFilePath(trackID)
	if err != nil {
		return "", err
	}
	if _, err := s.db.Exec(`DELETE FROM downloads WHERE track_id = ?`, trackID); err != nil {
		return "", fmt.Errorf("failed to delete download record: %w", err)
	}
	return path, nil
}

// Counts returns (pending+downloading, completed, failed).
func (s *Store) Counts() (inFlight, completed, failed int, err error) {
	err = s.db.QueryRow(
		`SELECT
			(SELECT COUNT(*) FROM downloads WHERE status IN ('pending', 'downloading')),
			(SELECT COUNT(*) FROM downloads WHERE status = 'completed'),
			(SELECT COUNT(*) FROM downloads WHERE status = 'failed')`,
	).Scan(&inFlight, &completed, &failed)
	return
}

// ClearCompleted deletes every completed row, returning their file paths so
// the caller can remove the backing files.
func (s *Store) ClearCompleted() ([]string, error) {
	rows, err := s.db.Query(`SELECT file_path FROM downloads WHERE status = 'completed'`)
	if err != nil {
		return nil, err
	}
	var paths []string
	for rows.Next() {
		var p sql.NullString
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, err
		}
		if p.Valid {
			paths = append(paths, p.String)
		}
	}
	rows.Close()
	if _, err := s.db.Exec(`DELETE FROM downloads WHERE status = 'completed'`); err != nil {
		return nil, err
	}
	return paths, nil
}

// SyncPlaylist upserts the playlist's sync row and queues + links any track
// not already linked, returning the count of newly-linked tracks. The
// linked-track set only grows here; shrinking happens only via
// RemoveSyncedPlaylist (invariant 7).
func (s *Store) SyncPlaylist(playlistID, name string, tracks []models.Track) (int, error) {
	if _, err := s.db.Exec(
		`INSERT INTO synced_playlists (playlist_id, name, track_count, last_synced)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(playlist_id) DO UPDATE SET name = excluded.name, track_count = excluded.track_count, last_synced = CURRENT_TIMESTAMP`,
		playlistID, name, len(tracks)); err != nil {
		return 0, fmt.Errorf("failed to upsert synced playlist: %w", err)
	}

	rows, err := s.db.Query(`SELECT track_id FROM playlist_tracks WHERE playlist_id = ?`, playlistID)
	if err != nil {
		return 0, fmt.Errorf("failed to read existing links: %w", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		existing[id] = true
	}
	rows.Close()

	newCount := 0
	for pos, t := range tracks {
		if existing[t.ID] {
			continue
		}
		if err := s.QueueTrack(t); err != nil {
			return newCount, err
		}
		if _, err := s.db.Exec(
			`INSERT OR REPLACE INTO playlist_tracks (playlist_id, track_id, position) VALUES (?, ?, ?)`,
			playlistID, t.ID, pos); err != nil {
			return newCount, fmt.Errorf("failed to link playlist track: %w", err)
		}
		newCount++
	}
	return newCount, nil
}

// GetSyncedPlaylists lists synced playlists, most-recently-synced first.
func (s *Store) GetSyncedPlaylists() ([]models.SyncedPlaylist, error) {
	rows, err := s.db.Query(`SELECT playlist_id, name, track_count FROM synced_playlists ORDER BY last_synced DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.SyncedPlaylist
	for rows.Next() {
		var sp models.SyncedPlaylist
		if err := rows.Scan(&sp.PlaylistID, &sp.Name, &sp.TrackCount); err != nil {
			return nil, err
		}
		linkRows, err := s.db.Query(`SELECT track_id FROM playlist_tracks WHERE playlist_id = ? ORDER BY position`, sp.PlaylistID)
		if err != nil {
			return nil, err
		}
		for linkRows.Next() {
			var id string
			if err := linkRows.Scan(&id); err != nil {
				linkRows.Close()
				return nil, err
			}
			sp.LinkedIDs = append(sp.LinkedIDs, id)
		}
		linkRows.Close()
		out = append(out, sp)
	}
	return out, rows.Err()
}

// IsPlaylistSynced reports whether playlistID has a synced_playlists row.
func (s *Store) IsPlaylistSynced(playlistID string) bool {
	var count int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM synced_playlists WHERE playlist_id = ?`, playlistID).Scan(&count)
	return count > 0
}

// RemoveSyncedPlaylist drops the playlist's sync row and its track links —
// the one place the linked set is allowed to shrink (explicit unsync).
func (s *Store) RemoveSyncedPlaylist(playlistID string) error {
	if _, err := s.db.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ?`, playlistID); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM synced_playlists WHERE playlist_id = ?`, playlistID)
	return err
}
