// Package config loads and hot-reloads taskd's YAML configuration
// file: storage backend selection, the scripts directory, interpreter
// commands, timezone, and cache/process tuning.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreMode selects which storage backend a Config.Store section
// configures.
type StoreMode string

const (
	StoreModeStandalone StoreMode = "standalone"
	StoreModeManaged    StoreMode = "managed"
)

// StoreConfig configures the storage backend.
type StoreConfig struct {
	Mode        StoreMode `yaml:"mode"`
	SqlitePath  string    `yaml:"sqlite_path"`
	PostgresDSN string    `yaml:"postgres_dsn"`
}

// Config is taskd's top-level configuration.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	Timezone        string        `yaml:"timezone"`
	ScriptsDir      string        `yaml:"scripts_dir"`
	PythonCommand   string        `yaml:"python_command"`
	NodeJSCommand   string        `yaml:"nodejs_command"`
	CacheRetention  time.Duration `yaml:"cache_retention"`
	GracefulStop    time.Duration `yaml:"graceful_stop_wait"`
	EncryptionKey   string        `yaml:"encryption_key"`
	Store           StoreConfig   `yaml:"store"`
}

// Default returns the configuration taskd runs with when no config
// file is present.
func Default() *Config {
	return &Config{
		ListenAddr:     ":8420",
		Timezone:       "UTC",
		ScriptsDir:     "./scripts",
		PythonCommand:  "python3",
		NodeJSCommand:  "node",
		CacheRetention: 5 * time.Minute,
		GracefulStop:   5 * time.Second,
		Store: StoreConfig{
			Mode:       StoreModeStandalone,
			SqlitePath: "./taskd.db",
		},
	}
}

// Load reads and parses the YAML config file at path, filling in
// defaults for any field the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = d.ListenAddr
	}
	if cfg.Timezone == "" {
		cfg.Timezone = d.Timezone
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = d.ScriptsDir
	}
	if cfg.PythonCommand == "" {
		cfg.PythonCommand = d.PythonCommand
	}
	if cfg.NodeJSCommand == "" {
		cfg.NodeJSCommand = d.NodeJSCommand
	}
	if cfg.CacheRetention <= 0 {
		cfg.CacheRetention = d.CacheRetention
	}
	if cfg.GracefulStop <= 0 {
		cfg.GracefulStop = d.GracefulStop
	}
	if cfg.Store.Mode == "" {
		cfg.Store.Mode = d.Store.Mode
	}
	if cfg.Store.Mode == StoreModeStandalone && cfg.Store.SqlitePath == "" {
		cfg.Store.SqlitePath = d.Store.SqlitePath
	}
}

// IsManaged reports whether the configured store is Postgres-backed.
func (c *Config) IsManaged() bool {
	return c.Store.Mode == StoreModeManaged && c.Store.PostgresDSN != ""
}
