package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/tidewire/federate/internal/shared"
)

func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect and restore the live playback queue",
		Commands: []*cli.Command{
			{Name: "list", Usage: "List the current playback queue", Action: r.QueueList},
			{Name: "restore", Usage: "Reload the queue from its last persisted snapshot", Action: r.QueueRestore},
			{Name: "advance", Usage: "Advance the playback position by one", Action: r.QueueAdvance},
		},
	}
}

func (r *Runner) requireQueue() error {
	if r.queue == nil {
		return fmt.Errorf("%w: playback queue not initialized", shared.ErrNoAdapter)
	}
	return nil
}

func (r *Runner) QueueList(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireQueue(); err != nil {
		return err
	}
	return r.printTracks(r.queue.List())
}

func (r *Runner) QueueRestore(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireQueue(); err != nil {
		return err
	}
	if err := r.queue.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore queue: %w", err)
	}
	r.writePlain("restored %d queued tracks\n", len(r.queue.List()))
	return nil
}

func (r *Runner) QueueAdvance(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireQueue(); err != nil {
		return err
	}
	if err := r.queue.Advance(ctx); err != nil {
		return fmt.Errorf("failed to advance queue: %w", err)
	}
	r.writePlain("advanced queue position\n")
	return nil
}
