package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API       APIConfig
	Query     QueryConfig
	Log       LogConfig
	Storage   StorageConfig
	History   HistoryConfig
	DevServer DevServerConfig
}

type APIConfig struct {
	BaseURL         string
	TimeoutMS       int
	HealthTimeoutMS int
}

// Timeout is the per-request deadline.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// HealthTimeout is the deadline for the connectivity probe.
func (c APIConfig) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutMS) * time.Millisecond
}

type QueryConfig struct {
	TopK      int
	UseRerank bool
}

type LogConfig struct {
	Level string
	File  string
}

type StorageConfig struct {
	DataDir string
}

// HistoryFile is the transcript archive's file name inside DataDir.
const HistoryFile = "history.db"

// HistoryPath is the transcript archive database. storage.Open takes it as is.
func (c StorageConfig) HistoryPath() string {
	return filepath.Join(c.DataDir, HistoryFile)
}

type HistoryConfig struct {
	Enabled bool
}

type DevServerConfig struct {
	Port int
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:         "http://localhost:8000/api/v1",
			TimeoutMS:       30000,
			HealthTimeoutMS: 5000,
		},
		Query: QueryConfig{
			TopK: 5,
		},
		Log: LogConfig{
			Level: "warn",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		History: HistoryConfig{
			Enabled: true,
		},
		DevServer: DevServerConfig{
			Port: 8000,
		},
	}
}

// Load reads configuration in layers: defaults, the JSON file at
// $XDG_CONFIG_HOME/ragdesk/config.json, then environment variables
// (RAGDESK_*). A .env file in the working directory is loaded into the
// environment first; variables already set are not overwritten.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend())
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.API.BaseURL == "" {
		return errors.New("invalid config: api.base_url must not be empty")
	}
	if cfg.API.TimeoutMS <= 0 || cfg.API.HealthTimeoutMS <= 0 {
		return fmt.Errorf("invalid config: timeouts must be positive (api.timeout_ms=%d, api.health_timeout_ms=%d)",
			cfg.API.TimeoutMS, cfg.API.HealthTimeoutMS)
	}
	if cfg.Query.TopK < 1 || cfg.Query.TopK > 20 {
		return fmt.Errorf("invalid config: query.top_k must be between 1 and 20, got %d", cfg.Query.TopK)
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "ragdesk-data"
		}
	}
	return filepath.Join(dir, "ragdesk")
}
