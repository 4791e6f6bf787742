// Package config loads application configuration from a YAML file with
// environment variable overrides for deployment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fieldworks/fieldsync/internal/apperr"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full application configuration.
type Config struct {
	// DataDir holds the local database. Defaults to ~/.fieldsync.
	DataDir string `yaml:"data_dir"`

	LogLevel string `yaml:"log_level"`

	Remote  RemoteConfig  `yaml:"remote"`
	Sync    SyncConfig    `yaml:"sync"`
	Network NetworkConfig `yaml:"network"`
	Server  ServerConfig  `yaml:"server"`
}

// RemoteConfig points at the backend API.
type RemoteConfig struct {
	BaseURL    string   `yaml:"base_url"`
	Timeout    Duration `yaml:"timeout"`
	HealthPath string   `yaml:"health_path"`
}

// SyncConfig tunes the background sync loop.
type SyncConfig struct {
	Interval   Duration `yaml:"interval"`
	MaxRetries int      `yaml:"max_retries"`
}

// NetworkConfig tunes the connectivity monitor.
type NetworkConfig struct {
	ProbeInterval Duration `yaml:"probe_interval"`
	StableProbes  int      `yaml:"stable_probes"`
}

// ServerConfig tunes the local status API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir:  filepath.Join(home, ".fieldsync"),
		LogLevel: "info",
		Remote: RemoteConfig{
			BaseURL:    "http://localhost:8080/api",
			Timeout:    Duration(15 * time.Second),
			HealthPath: "/health",
		},
		Sync: SyncConfig{
			Interval:   Duration(30 * time.Second),
			MaxRetries: 5,
		},
		Network: NetworkConfig{
			ProbeInterval: Duration(10 * time.Second),
			StableProbes:  2,
		},
		Server: ServerConfig{
			Port: 7337,
		},
	}
}

// Load reads configuration from path (optional), then applies FIELDSYNC_*
// environment overrides. An empty path skips the file and uses defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrInvalid, fmt.Sprintf("failed to read config %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperr.Wrap(apperr.ErrInvalid, fmt.Sprintf("failed to parse config %s", path), err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FIELDSYNC_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("FIELDSYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("FIELDSYNC_REMOTE_URL"); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv("FIELDSYNC_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Sync.Interval = Duration(d)
		}
	}
	if v := os.Getenv("FIELDSYNC_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.MaxRetries = n
		}
	}
	if v := os.Getenv("FIELDSYNC_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return apperr.New(apperr.ErrInvalid, "data_dir must not be empty")
	}
	if c.Remote.BaseURL == "" {
		return apperr.New(apperr.ErrInvalid, "remote.base_url must not be empty")
	}
	if c.Sync.MaxRetries < 0 {
		return apperr.New(apperr.ErrInvalid, "sync.max_retries must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return apperr.New(apperr.ErrInvalid, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	return nil
}

// HealthURL is the absolute URL probed by the network monitor.
func (c *Config) HealthURL() string {
	return c.Remote.BaseURL + c.Remote.HealthPath
}
