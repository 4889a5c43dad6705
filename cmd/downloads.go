package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/tidewire/federate/internal/downloads"
	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/musicsvc"
	"github.com/tidewire/federate/internal/shared"
)

func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Queue, drive, and inspect the download manager",
		Commands: []*cli.Command{
			{
				Name:  "queue",
				Usage: "Queue one track for download",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "artist"},
					&cli.StringFlag{Name: "album"},
					&cli.IntFlag{Name: "duration-seconds"},
					&cli.StringFlag{Name: "cover-id"},
				},
				Action: r.DownloadQueue,
			},
			{
				Name:      "sync-playlist",
				Usage:     "Mirror an entire provider playlist into the download queue",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.DownloadSyncPlaylist,
			},
			{Name: "synced-playlists", Usage: "List playlists currently mirrored into the download queue", Action: r.DownloadSyncedPlaylists},
			{
				Name:      "unsync-playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.DownloadUnsyncPlaylist,
			},
			{Name: "list", Usage: "List every download record", Action: r.DownloadList},
			{Name: "counts", Usage: "Show (pending+downloading, completed, failed) counts", Action: r.DownloadCounts},
			{Name: "process", Usage: "Drive one scheduling tick", Action: r.DownloadProcess},
			{Name: "pause", Action: r.DownloadPause},
			{Name: "resume", Action: r.DownloadResume},
			{
				Name:      "retry",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.DownloadRetry,
			},
			{
				Name:      "delete",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.DownloadDelete,
			},
			{Name: "cache-size", Usage: "Report total disk usage of the download root", Action: r.DownloadCacheSize},
			{Name: "clear-all", Usage: "Delete every downloaded file and record", Action: r.DownloadClearAll},
		},
	}
}

func (r *Runner) requireDownloads() error {
	if r.downloads == nil {
		return fmt.Errorf("%w: download manager not initialized", shared.ErrNoAdapter)
	}
	return nil
}

func (r *Runner) DownloadQueue(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	id := cmd.String("id")
	track := models.Track{
		ID:              id,
		Title:           cmd.String("title"),
		Artist:          cmd.String("artist"),
		Album:           cmd.String("album"),
		DurationSeconds: int(cmd.Int("duration-seconds")),
		Cover:           models.ServiceCoverArt(musicsvc.DetectService(id), cmd.String("cover-id")),
		Service:         musicsvc.DetectService(id),
	}
	if err := r.downloads.QueueTrack(track); err != nil {
		return fmt.Errorf("failed to queue download: %w", err)
	}
	r.writePlain("queued %s for download\n", track.Title)
	return nil
}

func (r *Runner) DownloadSyncPlaylist(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	if err := r.requireManager(); err != nil {
		return err
	}
	id := cmd.StringArg("id")
	playlists, err := r.manager.GetPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve playlist name: %w", err)
	}
	name := id
	for _, p := range playlists {
		if p.ID == id {
			name = p.Title
			break
		}
	}

	tracks, err := r.manager.GetPlaylistTracks(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list playlist tracks: %w", err)
	}
	newCount, err := r.downloads.SyncPlaylist(id, name, tracks)
	if err != nil {
		return fmt.Errorf("failed to sync playlist: %w", err)
	}
	r.writePlain("synced %q: %d new tracks queued (of %d total)\n", name, newCount, len(tracks))
	return nil
}

func (r *Runner) DownloadSyncedPlaylists(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	synced, err := r.downloads.GetSyncedPlaylists()
	if err != nil {
		return fmt.Errorf("failed to list synced playlists: %w", err)
	}
	for _, s := range synced {
		r.writePlain("%s (%s) - %d tracks linked\n", s.Name, s.PlaylistID, len(s.LinkedIDs))
	}
	return nil
}

func (r *Runner) DownloadUnsyncPlaylist(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	if err := r.downloads.RemoveSyncedPlaylist(cmd.StringArg("id")); err != nil {
		return fmt.Errorf("failed to unsync playlist: %w", err)
	}
	r.writePlain("playlist unsynced\n")
	return nil
}

func (r *Runner) DownloadList(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	records, err := r.downloads.GetAllDownloads()
	if err != nil {
		return fmt.Errorf("failed to list downloads: %w", err)
	}
	for _, rec := range records {
		r.writePlain("%-12s %-8s %s - %s (%s)\n", rec.Status, progressLabel(rec), rec.Artist, rec.Title, rec.TrackID)
	}
	return nil
}

func progressLabel(rec models.DownloadRecord) string {
	if rec.TotalBytes <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d%%", rec.ProgressBytes*100/rec.TotalBytes)
}

func (r *Runner) DownloadCounts(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	active, completed, failed, err := r.downloads.Counts()
	if err != nil {
		return fmt.Errorf("failed to count downloads: %w", err)
	}
	r.writePlain("active: %d, completed: %d, failed: %d\n", active, completed, failed)
	return nil
}

// DownloadProcess drives one non-blocking scheduling tick, the same call an
// application loop would make on every poll.
func (r *Runner) DownloadProcess(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	outcome, err := r.downloads.ProcessNext(ctx)
	if err != nil {
		return fmt.Errorf("failed to process downloads: %w", err)
	}
	if outcome == downloads.Started {
		r.writePlain("started a download\n")
	} else {
		r.writePlain("no pending work\n")
	}
	return nil
}

func (r *Runner) DownloadPause(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	r.downloads.Pause()
	r.writePlain("downloads paused\n")
	return nil
}

func (r *Runner) DownloadResume(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	r.downloads.Resume()
	r.writePlain("downloads resumed\n")
	return nil
}

func (r *Runner) DownloadRetry(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	if err := r.downloads.RetryFailed(cmd.StringArg("id")); err != nil {
		return fmt.Errorf("failed to retry download: %w", err)
	}
	r.writePlain("retry queued\n")
	return nil
}

func (r *Runner) DownloadDelete(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	if err := r.downloads.Delete(cmd.StringArg("id")); err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}
	r.writePlain("deleted\n")
	return nil
}

func (r *Runner) DownloadCacheSize(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	size, err := r.downloads.GetCacheSize()
	if err != nil {
		return fmt.Errorf("failed to get cache size: %w", err)
	}
	r.writePlain("%d bytes\n", size)
	return nil
}

func (r *Runner) DownloadClearAll(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDownloads(); err != nil {
		return err
	}
	if err := r.downloads.ClearAllDownloads(); err != nil {
		return fmt.Errorf("failed to clear downloads: %w", err)
	}
	r.writePlain("all downloads cleared\n")
	return nil
}
