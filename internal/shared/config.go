package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// Subsections mirror the collaborator contract: service credentials,
// playback daemon connection, UI/search/storage/downloads behaviour.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Bandcamp  BandcampConfig  `toml:"bandcamp"`
	Database  DatabaseConfig  `toml:"database"`
	Storage   StorageConfig   `toml:"storage"`
	Search    SearchConfig    `toml:"search"`
	Downloads DownloadsConfig `toml:"downloads"`
	Mpd       MpdConfig       `toml:"mpd"`
	Playback  PlaybackConfig  `toml:"playback"`
	UI        UIConfig        `toml:"ui"`
	Video     VideoConfig     `toml:"video"`
}

// ServiceConfig groups per-provider credentials and the primary provider choice.
type ServiceConfig struct {
	Primary string       `toml:"primary"` // "tidal" | "youtube" | "bandcamp"
	Tidal   TidalConfig  `toml:"tidal"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// TidalConfig contains Tidal OAuth2 credentials and quality default.
type TidalConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token,omitempty"`
	RefreshToken string `toml:"refresh_token,omitempty"`
	Quality      string `toml:"quality"` // low | high | lossless | master
}

// YouTubeConfig contains YouTube Music proxy credentials.
type YouTubeConfig struct {
	BaseURL string `toml:"base_url"`
	// AuthFile points at a curl command exported from a signed-in browser
	// session's network tab (copy as cURL on any ytmusic.google.com
	// request). Parsed once into ytmusicapi's headers_raw format.
	AuthFile string `toml:"auth_file"`
}

// BandcampConfig contains the Bandcamp adapter's sidecar-store path.
type BandcampConfig struct {
	MixedPlaylistsPath string `toml:"mixed_playlists_path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StorageConfig selects and tunes the Storage Layer backend (§4.5).
type StorageConfig struct {
	Backend           string `toml:"backend"` // "local" | "distributed"
	ClusterEndpoint   string `toml:"cluster_endpoint"`
	UserID            string `toml:"user_id"`
	SearchCacheTTLSec int    `toml:"search_cache_ttl_seconds"`
	ArtCacheCapacity  int    `toml:"art_cache_capacity"`
	QueuePath         string `toml:"queue_path"`
}

// SearchConfig tunes the Search Pipeline (§4.6).
type SearchConfig struct {
	DebounceMillis    int `toml:"debounce_millis"`
	MinChars          int `toml:"min_chars"`
	HistoryMaxSize    int `toml:"history_max_size"`
	PerAdapterTimeout int `toml:"per_adapter_timeout_seconds"`
}

// DownloadsConfig tunes the Download Manager (§4.3).
type DownloadsConfig struct {
	Root              string `toml:"root"`
	MaxConcurrent     int    `toml:"max_concurrent"`
}

// MpdConfig describes the external audio daemon connection (collaborator, §6).
type MpdConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// PlaybackConfig tunes the Radio Engine's refill threshold (§4.4).
type PlaybackConfig struct {
	RadioRefillThreshold int `toml:"radio_refill_threshold"`
	RadioFetchCount      int `toml:"radio_fetch_count"`
}

// UIConfig is opaque to the core; carried through for the collaborator contract.
type UIConfig struct {
	Theme string `toml:"theme"`
}

// VideoConfig is opaque to the core; carried through for the collaborator contract.
type VideoConfig struct {
	Enabled bool `toml:"enabled"`
}

// Map converts Tidal credentials into the adapter constructor's credential map shape.
func (t TidalConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     t.ClientID,
		"client_secret": t.ClientSecret,
		"redirect_uri":  t.RedirectURI,
	}
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Expands ~ in file paths to the user's home directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.Database.Path = ExpandPath(config.Database.Path)
	config.Downloads.Root = ExpandPath(config.Downloads.Root)
	config.Storage.QueuePath = ExpandPath(config.Storage.QueuePath)
	config.Service.YouTube.AuthFile = ExpandPath(config.Service.YouTube.AuthFile)
	config.Bandcamp.MixedPlaylistsPath = ExpandPath(config.Bandcamp.MixedPlaylistsPath)

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes a Config struct to a TOML file at the specified path.
func SaveConfig(path string, config *Config) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
