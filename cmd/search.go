package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/tidewire/federate/internal/shared"
)

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search tracks, albums, and artists across every enabled provider",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filter", Usage: "Fuzzy post-filter narrowing the ranked results"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum results requested per category", Value: 20},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output", Value: true},
		},
		Action: r.Search,
	}
}

// Search runs a query through the search pipeline (debounce is a UI-layer
// concern, so the CLI calls straight into Search rather than Keystroke).
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: a search query is required", shared.ErrInvalidArgument)
	}
	if r.search == nil {
		return fmt.Errorf("%w: search pipeline not initialized", shared.ErrNoAdapter)
	}

	results, err := r.search.Search(ctx, query, cmd.String("filter"), int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(results, cmd.Bool("pretty"))
	}

	r.writePlain("Tracks (%d):\n", len(results.Tracks))
	for _, t := range results.Tracks {
		r.writePlain("  %-8s %s - %s (%s)\n", t.Service, t.Artist, t.Title, t.ID)
	}
	r.writePlain("Albums (%d):\n", len(results.Albums))
	for _, a := range results.Albums {
		r.writePlain("  %-8s %s - %s (%s)\n", a.Service, a.Artist, a.Title, a.ID)
	}
	r.writePlain("Artists (%d):\n", len(results.Artists))
	for _, a := range results.Artists {
		r.writePlain("  %-8s %s (%s)\n", a.Service, a.Name, a.ID)
	}
	return nil
}

func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "List every provider's variant of a previously-searched track",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "title"},
			&cli.StringArg{Name: "artist"},
		},
		Action: r.Resolve,
	}
}

// Resolve looks up every service's variant of title/artist recorded by past
// searches in the cross-service track cache (§3 track-key normalization).
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	if r.search == nil {
		return fmt.Errorf("%w: search pipeline not initialized", shared.ErrNoAdapter)
	}
	title := cmd.StringArg("title")
	artist := cmd.StringArg("artist")
	matches, err := r.search.CrossServiceMatches(ctx, title, artist)
	if err != nil {
		return fmt.Errorf("failed to resolve cross-service matches: %w", err)
	}
	if len(matches) == 0 {
		r.writePlain("no cross-service matches cached for %q by %q\n", title, artist)
		return nil
	}
	for _, m := range matches {
		r.writePlain("  %-8s %s (%s)\n", m.Service, m.TrackID, m.Album)
	}
	return nil
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Search and play history",
		Commands: []*cli.Command{
			{
				Name:   "search",
				Usage:  "List recent search queries",
				Action: r.SearchHistory,
			},
			{
				Name:  "played",
				Usage: "List recently played tracks",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50},
				},
				Action: r.PlayHistory,
			},
			{
				Name:   "clear",
				Usage:  "Clear both search and play history",
				Action: r.ClearHistory,
			},
		},
	}
}

// SearchHistory lists the search-query history the search pipeline recorded.
func (r *Runner) SearchHistory(ctx context.Context, cmd *cli.Command) error {
	if r.search == nil {
		return fmt.Errorf("%w: search pipeline not initialized", shared.ErrNoAdapter)
	}
	entries, err := r.search.History()
	if err != nil {
		return fmt.Errorf("failed to load search history: %w", err)
	}
	for i, e := range entries {
		r.writePlain("%d. %s (%d results)\n", i+1, e.Query, e.ResultCount)
	}
	return nil
}

// PlayHistory lists recently played tracks from the storage backend.
func (r *Runner) PlayHistory(ctx context.Context, cmd *cli.Command) error {
	if r.backend == nil {
		return fmt.Errorf("%w: storage backend not initialized", shared.ErrNoAdapter)
	}
	entries, err := r.backend.GetHistory(ctx, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("failed to load play history: %w", err)
	}
	for i, e := range entries {
		r.writePlain("%d. %s - %s (%s)\n", i+1, e.Artist, e.Title, e.Service)
	}
	return nil
}

// ClearHistory clears both the play history (storage backend) and the
// search-query history (search pipeline).
func (r *Runner) ClearHistory(ctx context.Context, cmd *cli.Command) error {
	if r.backend != nil {
		if err := r.backend.ClearHistory(ctx); err != nil {
			return fmt.Errorf("failed to clear play history: %w", err)
		}
	}
	if r.search != nil {
		if err := r.search.ClearHistory(); err != nil {
			return fmt.Errorf("failed to clear search history: %w", err)
		}
	}
	r.writePlain("history cleared\n")
	return nil
}
