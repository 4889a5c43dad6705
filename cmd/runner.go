package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/tidewire/federate/internal/artcache"
	"github.com/tidewire/federate/internal/downloads"
	"github.com/tidewire/federate/internal/eventbus"
	"github.com/tidewire/federate/internal/models"
	"github.com/tidewire/federate/internal/musicsvc"
	"github.com/tidewire/federate/internal/radio"
	"github.com/tidewire/federate/internal/search"
	"github.com/tidewire/federate/internal/shared"
	"github.com/tidewire/federate/internal/storage"
)

// Runner holds every dependency the CLI command actions operate against: the
// Multi-Service Manager, the Storage/Download/Search/Art-Cache layers, and
// the radio engine wired on top of them.
type Runner struct {
	config    *shared.Config
	logger    *log.Logger
	output    io.Writer
	manager   *musicsvc.Manager
	backend   storage.Backend
	downloads *downloads.Manager
	search    *search.Pipeline
	art       *artcache.Cache
	radio     *radio.Engine
	queue     *localQueue
	bus       *eventbus.Bus
}

// RunnerConfig contains the built collaborators a Runner wraps for command
// dispatch.
type RunnerConfig struct {
	Config    *shared.Config
	Logger    *log.Logger
	Output    io.Writer
	Manager   *musicsvc.Manager
	Backend   storage.Backend
	Downloads *downloads.Manager
	Search    *search.Pipeline
	Art       *artcache.Cache
	Radio     *radio.Engine
	Queue     *localQueue
	Bus       *eventbus.Bus
}

// NewRunner creates a new Runner, defaulting the logger and output writer
// when the caller omits them.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = shared.NewLogger(nil)
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	return &Runner{
		config:    cfg.Config,
		logger:    cfg.Logger,
		output:    cfg.Output,
		manager:   cfg.Manager,
		backend:   cfg.Backend,
		downloads: cfg.Downloads,
		search:    cfg.Search,
		art:       cfg.Art,
		radio:     cfg.Radio,
		queue:     cfg.Queue,
		bus:       cfg.Bus,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		searchCommand, resolveCommand, historyCommand, catalogCommand, radioCommand, downloadCommand, queueCommand, syncCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// printTracks writes a one-line-per-track plain text listing, shared by
// every command that surfaces a []models.Track.
func (r *Runner) printTracks(tracks []models.Track) error {
	for _, t := range tracks {
		r.writePlain("%-8s %s - %s (%s)\n", t.Service, t.Artist, t.Title, t.ID)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// setupDatabase loads (or creates) config.toml at configPath, then opens the
// database and runs migrations against it. Shared by the `setup` command and
// by main's own startup so a first run never needs a separate step.
func setupDatabase(configPath string, logger *log.Logger) (*shared.Config, error) {
	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else if config, err = shared.LoadConfig(configPath); err != nil {
			logger.Warn("failed to load created config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	}

	logger.Info("initializing database", "path", config.Database.Path)
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Infof("setup complete for database: %v", config.Database.Path)
	return config, nil
}
