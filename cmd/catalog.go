package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/shared"
)

func catalogCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Browse playlists, favorites, and provider catalogs",
		Commands: []*cli.Command{
			{Name: "playlists", Usage: "List playlists across every provider", Action: r.Playlists},
			{
				Name:      "playlist-tracks",
				Usage:     "List a playlist's tracks",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.PlaylistTracks,
			},
			{Name: "favorite-tracks", Usage: "List favorite tracks", Action: r.FavoriteTracks},
			{Name: "favorite-albums", Usage: "List favorite albums", Action: r.FavoriteAlbums},
			{Name: "favorite-artists", Usage: "List favorite artists", Action: r.FavoriteArtists},
			{
				Name:      "album-tracks",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.AlbumTracks,
			},
			{
				Name:      "artist-top-tracks",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.ArtistTopTracks,
			},
			{
				Name:      "artist-albums",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.ArtistAlbums,
			},
			{
				Name:  "create-playlist",
				Usage: "Create a playlist on the primary provider",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "description"},
				},
				Action: r.CreatePlaylist,
			},
			{
				Name:      "favorite-add",
				Usage:     "Add a track to favorites",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.FavoriteAdd,
			},
			{
				Name:      "favorite-remove",
				Usage:     "Remove a track from favorites",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.FavoriteRemove,
			},
			{
				Name:  "cover",
				Usage: "Resolve and cache a cover image, reporting hit/miss",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "service", Usage: "tidal | youtube | bandcamp; omit with --url for a direct-URL cover"},
					&cli.StringFlag{Name: "id", Usage: "provider-owned cover id, paired with --service"},
					&cli.StringFlag{Name: "url", Usage: "direct cover URL, used instead of --service/--id"},
					&cli.IntFlag{Name: "size", Value: 300},
				},
				Action: r.Cover,
			},
		},
	}
}

func (r *Runner) requireManager() error {
	if r.manager == nil {
		return fmt.Errorf("%w: no provider adapters configured", shared.ErrNoAdapter)
	}
	return nil
}

func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	playlists, err := r.manager.GetPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("failed to list playlists: %w", err)
	}
	for _, p := range playlists {
		r.writePlain("%-8s %s (%s) - %d tracks\n", p.Service, p.Title, p.ID, p.TrackCount)
	}
	return nil
}

func (r *Runner) PlaylistTracks(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	id := cmd.StringArg("id")
	tracks, err := r.manager.GetPlaylistTracks(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list playlist tracks: %w", err)
	}
	return r.printTracks(tracks)
}

func (r *Runner) FavoriteTracks(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	tracks, err := r.manager.GetFavoriteTracks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list favorite tracks: %w", err)
	}
	return r.printTracks(tracks)
}

func (r *Runner) FavoriteAlbums(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	albums, err := r.manager.GetFavoriteAlbums(ctx)
	if err != nil {
		return fmt.Errorf("failed to list favorite albums: %w", err)
	}
	for _, a := range albums {
		r.writePlain("%-8s %s - %s (%s)\n", a.Service, a.Artist, a.Title, a.ID)
	}
	return nil
}

func (r *Runner) FavoriteArtists(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	artists, err := r.manager.GetFavoriteArtists(ctx)
	if err != nil {
		return fmt.Errorf("failed to list favorite artists: %w", err)
	}
	for _, a := range artists {
		r.writePlain("%-8s %s (%s)\n", a.Service, a.Name, a.ID)
	}
	return nil
}

func (r *Runner) AlbumTracks(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	tracks, err := r.manager.GetAlbumTracks(ctx, cmd.StringArg("id"))
	if err != nil {
		return fmt.Errorf("failed to list album tracks: %w", err)
	}
	return r.printTracks(tracks)
}

func (r *Runner) ArtistTopTracks(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	tracks, err := r.manager.GetArtistTopTracks(ctx, cmd.StringArg("id"))
	if err != nil {
		return fmt.Errorf("failed to list artist top tracks: %w", err)
	}
	return r.printTracks(tracks)
}

func (r *Runner) ArtistAlbums(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	albums, err := r.manager.GetArtistAlbums(ctx, cmd.StringArg("id"))
	if err != nil {
		return fmt.Errorf("failed to list artist albums: %w", err)
	}
	for _, a := range albums {
		r.writePlain("%-8s %s (%s) - %d tracks\n", a.Service, a.Title, a.ID, a.NumTracks)
	}
	return nil
}

func (r *Runner) CreatePlaylist(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	playlist, err := r.manager.CreatePlaylist(ctx, cmd.String("name"), cmd.String("description"))
	if err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	r.writePlain("created playlist %s (%s)\n", playlist.Title, playlist.ID)
	return nil
}

func (r *Runner) FavoriteAdd(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	if err := r.manager.AddFavoriteTrack(ctx, cmd.StringArg("id")); err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	r.writePlain("added to favorites\n")
	return nil
}

func (r *Runner) FavoriteRemove(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireManager(); err != nil {
		return err
	}
	if err := r.manager.RemoveFavoriteTrack(ctx, cmd.StringArg("id")); err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	r.writePlain("removed from favorites\n")
	return nil
}

// Cover resolves a cover art descriptor through the album art cache. A first
// call against a given key is always a miss that kicks off a background
// fetch; a later call (or `catalog cover` run again) reports the hit once
// the fetch has landed.
func (r *Runner) Cover(ctx context.Context, cmd *cli.Command) error {
	if r.art == nil {
		return fmt.Errorf("%w: album art cache not initialized", shared.ErrNoAdapter)
	}
	size := int(cmd.Int("size"))

	if url := cmd.String("url"); url != "" {
		img, hit := r.art.GetURL(ctx, url, size)
		if !hit {
			r.writePlain("miss: background fetch started for %s\n", url)
			return nil
		}
		bounds := img.Bounds()
		r.writePlain("cached (%dx%d)\n", bounds.Dx(), bounds.Dy())
		return nil
	}

	service := cmd.String("service")
	id := cmd.String("id")
	if service == "" || id == "" {
		return fmt.Errorf("%w: --url or --service/--id is required", shared.ErrInvalidArgument)
	}
	cover := models.ServiceCoverArt(models.ServiceType(service), id)
	img, hit := r.art.Get(ctx, cover, size)
	if !hit {
		r.writePlain("miss: background fetch started for %s:%s\n", service, id)
		return nil
	}
	bounds := img.Bounds()
	r.writePlain("cached (%dx%d)\n", bounds.Dx(), bounds.Dy())
	return nil
}
