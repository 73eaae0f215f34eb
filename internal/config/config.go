package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ibeckermayer/feedsieve/internal/thread"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

const appName = "feedsieve"

// Classifier backends
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderRemote    = "remote"
)

// Verdict cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds all application configuration
type Config struct {
	Version     int               `toml:"version"`
	Enabled     bool              `toml:"enabled"`
	DisplayMode types.DisplayMode `toml:"display_mode"`
	Criteria    CriteriaConfig    `toml:"criteria"`
	Analysis    AnalysisConfig    `toml:"analysis"`
	Observer    ObserverConfig    `toml:"observer"`
	Thread      thread.Policy     `toml:"thread"`
	Cache       CacheConfig       `toml:"cache"`
	Store       StoreConfig       `toml:"store"`
	Scraping    ScrapingConfig    `toml:"scraping"`
	Log         LogConfig         `toml:"log"`
}

// CriteriaConfig holds the three classification lists, one bullet per line
type CriteriaConfig struct {
	Filter    string `toml:"filter"`
	Allow     string `toml:"allow"`
	Highlight string `toml:"highlight"`
}

type AnalysisConfig struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	RemoteURL      string `toml:"remote_url"`
	Workers        int    `toml:"workers"`
	QueueSize      int    `toml:"queue_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

type ObserverConfig struct {
	Threshold  float64 `toml:"threshold"`
	RootMargin float64 `toml:"root_margin"`
}

type CacheConfig struct {
	Backend   string `toml:"backend"`
	RedisAddr string `toml:"redis_addr"`
	TTLHours  int    `toml:"ttl_hours"`
}

type StoreConfig struct {
	RetentionDays  int    `toml:"retention_days"`
	PruneSchedule  string `toml:"prune_schedule"`
	ReportSchedule string `toml:"report_schedule"` // empty disables periodic reports
	ReportMaxPosts int    `toml:"report_max_posts"`
}

type ScrapingConfig struct {
	Headless       bool   `toml:"headless"`
	FeedURL        string `toml:"feed_url"`
	SnapshotOnExit bool   `toml:"snapshot_on_exit"`
	DumpLLM        bool   `toml:"dump_llm"`
	DumpRecords    bool   `toml:"dump_records"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version:     1,
		Enabled:     true,
		DisplayMode: types.Blur,
		Criteria:    DefaultCriteria(),
		Analysis: AnalysisConfig{
			Provider:       ProviderOpenAI,
			BaseURL:        "https://api.groq.com/openai/v1",
			Model:          "meta-llama/llama-4-scout-17b-16e-instruct",
			RemoteURL:      "http://localhost:8000/analyze",
			Workers:        4,
			QueueSize:      256,
			TimeoutSeconds: 10,
			MaxRetries:     5,
		},
		Observer: ObserverConfig{
			Threshold:  0.3,
			RootMargin: 100,
		},
		Thread: thread.DefaultPolicy(),
		Cache: CacheConfig{
			Backend:   CacheMemory,
			RedisAddr: "localhost:6379",
			TTLHours:  24,
		},
		Store: StoreConfig{
			RetentionDays:  30,
			PruneSchedule:  "0 4 * * *",
			ReportMaxPosts: 100,
		},
		Scraping: ScrapingConfig{
			Headless: false,
			FeedURL:  "https://x.com/home",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	switch c.DisplayMode {
	case types.Blur, types.Hide:
	default:
		return fmt.Errorf("invalid display_mode %q (want blur or hide)", c.DisplayMode)
	}
	switch c.Analysis.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderRemote:
	default:
		return fmt.Errorf("unknown analysis provider: %s", c.Analysis.Provider)
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}
	if c.Observer.Threshold < 0 || c.Observer.Threshold > 1 {
		return fmt.Errorf("observer threshold %g out of range [0, 1]", c.Observer.Threshold)
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis workers must be at least 1, got %d", c.Analysis.Workers)
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, appName), nil
}

// Load reads config from the default path. A missing file yields the
// defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads config from path on top of the defaults
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
