package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

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

const defaultConfigPath = "config.toml"

var logger *log.Logger

func main() {
	logger = shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat(defaultConfigPath); err == nil {
		if loaded, loadErr := shared.LoadConfig(defaultConfigPath); loadErr == nil {
			config = loaded
		} else {
			logger.Warn("failed to load config, using defaults", "error", loadErr)
		}
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		logger.Fatalf("failed to run migrations: %v", err)
	}

	manager := buildManager(config, logger)

	configDir := config.Storage.QueuePath
	if configDir == "" {
		configDir = filepath.Dir(config.Database.Path)
	}

	var backend storage.Backend
	switch config.Storage.Backend {
	case "distributed":
		logger.Warn("distributed storage backend configured but no cluster transport is wired into this build; falling back to local storage")
		backend = storage.NewLocalBackend(db, configDir)
	default:
		backend = storage.NewLocalBackend(db, configDir)
	}

	bus := eventbus.New()
	debugLog := shared.NewDebugLog()

	store := downloads.NewStore(db)
	downloadsMgr := downloads.NewManager(store, manager, config.Downloads.Root, config.Downloads.MaxConcurrent, bus, logger, debugLog)

	searchHistory := storage.NewSearchHistory(configDir, config.Search.HistoryMaxSize)
	pipeline := search.New(search.Config{
		Debounce:    time.Duration(config.Search.DebounceMillis) * time.Millisecond,
		MinChars:    config.Search.MinChars,
		CacheTTL:    time.Duration(config.Storage.SearchCacheTTLSec) * time.Second,
		CacheEnable: true,
	}, manager, backend, searchHistory)

	artCache, err := artcache.New(config.Storage.ArtCacheCapacity, manager, bus)
	if err != nil {
		logger.Fatalf("failed to create art cache: %v", err)
	}

	queue := newLocalQueue(backend)
	if err := queue.Restore(context.Background()); err != nil {
		logger.Warn("failed to restore persisted queue", "error", err)
	}
	radioEngine := radio.New(manager, queue, debugLog)

	runner := NewRunner(RunnerConfig{
		Config:    config,
		Logger:    logger,
		Manager:   manager,
		Backend:   backend,
		Downloads: downloadsMgr,
		Search:    pipeline,
		Art:       artCache,
		Radio:     radioEngine,
		Queue:     queue,
		Bus:       bus,
	})

	app := &cli.Command{
		Name:    "federate",
		Usage:   "Federated multi-provider music client substrate (Tidal, YouTube Music, Bandcamp)",
		Version: "0.1.0",
		Commands: append([]*cli.Command{
			setupCommand(),
			authCommand(),
		}, runner.register()...),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

// buildManager constructs whichever provider adapters are configured and
// wires them into a Multi-Service Manager. YouTube always participates
// since its adapter works against an unauthenticated local proxy by
// default; Tidal and Bandcamp only join when their credentials/store path
// are present.
func buildManager(config *shared.Config, logger *log.Logger) *musicsvc.Manager {
	var adapters []musicsvc.Service

	if config.Service.Tidal.ClientID != "" && config.Service.Tidal.ClientSecret != "" {
		adapters = append(adapters, musicsvc.NewTidalAdapter(config.Service.Tidal, logger))
	}
	adapters = append(adapters, musicsvc.NewYouTubeAdapter(config.Service.YouTube))
	if config.Bandcamp.MixedPlaylistsPath != "" {
		adapters = append(adapters, musicsvc.NewBandcampAdapter(config.Bandcamp.MixedPlaylistsPath))
	}

	perAdapterTimeout := time.Duration(config.Search.PerAdapterTimeout) * time.Second
	if perAdapterTimeout <= 0 {
		perAdapterTimeout = 5 * time.Second
	}

	primary := models.ServiceType(config.Service.Primary)
	return musicsvc.NewManager(adapters, primary, perAdapterTimeout, logger)
}

func setupCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize the database and write a config.toml if missing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   defaultConfigPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, err := setupDatabase(cmd.String("config"), logger)
			return err
		},
	}
}
