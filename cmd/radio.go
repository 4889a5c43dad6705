package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/tidewire/federate/internal/radio"
	"github.com/tidewire/federate/internal/shared"
)

func radioCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "radio",
		Usage: "Seed-based automatic queue refill",
		Commands: []*cli.Command{
			{
				Name:  "seed",
				Usage: "Arm radio mode from a track, playlist, artist, or album seed",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Required: true, Usage: "track | playlist | artist | album"},
					&cli.StringFlag{Name: "id", Required: true},
				},
				Action: r.RadioSeed,
			},
			{Name: "stop", Usage: "Disarm radio mode", Action: r.RadioStop},
			{Name: "status", Usage: "Show the current radio seed", Action: r.RadioStatus},
			{Name: "refill", Usage: "Manually trigger a refill check", Action: r.RadioRefill},
		},
	}
}

func parseSeedKind(kind string) (radio.SeedKind, error) {
	switch kind {
	case "track":
		return radio.SeedTrack, nil
	case "playlist":
		return radio.SeedPlaylist, nil
	case "artist":
		return radio.SeedArtist, nil
	case "album":
		return radio.SeedAlbum, nil
	default:
		return 0, fmt.Errorf("%w: unknown radio seed kind %q", shared.ErrInvalidArgument, kind)
	}
}

func seedKindName(kind radio.SeedKind) string {
	switch kind {
	case radio.SeedTrack:
		return "track"
	case radio.SeedPlaylist:
		return "playlist"
	case radio.SeedArtist:
		return "artist"
	case radio.SeedAlbum:
		return "album"
	default:
		return "unknown"
	}
}

func (r *Runner) requireRadio() error {
	if r.radio == nil {
		return fmt.Errorf("%w: radio engine not initialized", shared.ErrNoAdapter)
	}
	return nil
}

func (r *Runner) RadioSeed(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireRadio(); err != nil {
		return err
	}
	kind, err := parseSeedKind(cmd.String("kind"))
	if err != nil {
		return err
	}
	r.radio.SetSeed(&radio.Seed{Kind: kind, ID: cmd.String("id")})
	r.writePlain("radio seeded from %s %s\n", cmd.String("kind"), cmd.String("id"))
	return nil
}

func (r *Runner) RadioStop(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireRadio(); err != nil {
		return err
	}
	r.radio.SetSeed(nil)
	r.writePlain("radio stopped\n")
	return nil
}

func (r *Runner) RadioStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireRadio(); err != nil {
		return err
	}
	seed := r.radio.CurrentSeed()
	if seed == nil {
		r.writePlain("radio is off\n")
		return nil
	}
	r.writePlain("radio seeded from %s %s\n", seedKindName(seed.Kind), seed.ID)
	return nil
}

// RadioRefill drives one refill check against the live queue, the same call
// a playback status poll would make.
func (r *Runner) RadioRefill(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireRadio(); err != nil {
		return err
	}
	if r.queue == nil {
		return fmt.Errorf("%w: playback queue not initialized", shared.ErrNoAdapter)
	}
	r.radio.CheckRefill(ctx, r.queue.ExistingIDs())
	r.writePlain("refill check complete, %d tracks queued\n", len(r.queue.List()))
	return nil
}
