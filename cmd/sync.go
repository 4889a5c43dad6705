package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/tidewire/federate/internal/shared"
	"github.com/tidewire/federate/internal/storage"
)

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Poll the storage backend for remote queue/history changes (distributed backend only)",
		Action: r.Sync,
	}
}

// Sync drives storage.Backend.PollChanges once, printing whatever remote
// mutation it surfaces. Against the local backend this always reports no
// changes, since a single process sees its own writes synchronously.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if r.backend == nil {
		return fmt.Errorf("%w: storage backend not initialized", shared.ErrNoAdapter)
	}

	events, err := r.backend.PollChanges(ctx)
	if err != nil {
		return fmt.Errorf("failed to poll for remote changes: %w", err)
	}
	if len(events) == 0 {
		r.writePlain("no remote changes\n")
		return nil
	}

	for _, e := range events {
		switch e.Kind {
		case storage.QueueChanged:
			count := 0
			if e.Queue != nil {
				count = len(e.Queue.Tracks)
			}
			r.writePlain("queue changed remotely: %d tracks\n", count)
		case storage.HistoryChanged:
			r.writePlain("history changed remotely: %d entries\n", len(e.History))
		}
	}
	return nil
}
