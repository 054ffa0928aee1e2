// Package config provides configuration management for the valley server.
//
// Config file locations (priority order):
//  1. $HYDROVALLEY_CONFIG
//  2. ./hydrovalley.yaml, then ./hydrovalley.toml
//  3. $XDG_CONFIG_HOME/hydrovalley/config.yaml
//  4. ~/.config/hydrovalley/config.yaml
//  5. /etc/hydrovalley/config.yaml
//
// Files ending in .toml are read as TOML, everything else as YAML. Keys
// missing from the file keep their defaults.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hydrovalley/internal/logging"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultAddr              = ":3000"
	DefaultLayoutURL         = "http://127.0.0.1:8081/calculate_layout"
	DefaultSimulationURL     = "http://127.0.0.1:8081/run_simulation"
	DefaultLayoutTimeout     = 10 * time.Second
	DefaultSimulationTimeout = 30 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultDatasetDir        = "./datasets"
	DefaultDataset           = "hydro_valley_instance.json"
	DefaultHistoryPath       = "./hydrovalley.db"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return cfg, path, nil
}

// Save writes config to the specified path, as TOML when the path ends in
// .toml
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(c); err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},
		Services: ServicesConfig{
			LayoutURL:         DefaultLayoutURL,
			LayoutTimeout:     Duration(DefaultLayoutTimeout),
			SimulationURL:     DefaultSimulationURL,
			SimulationTimeout: Duration(DefaultSimulationTimeout),
		},
		Datasets: DatasetsConfig{
			Dir:     DefaultDatasetDir,
			Default: DefaultDataset,
			Watch:   true,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryPath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills in values left empty by the file
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Services.LayoutURL == "" {
		c.Services.LayoutURL = DefaultLayoutURL
	}
	if c.Services.LayoutTimeout <= 0 {
		c.Services.LayoutTimeout = Duration(DefaultLayoutTimeout)
	}
	if c.Services.SimulationURL == "" {
		c.Services.SimulationURL = DefaultSimulationURL
	}
	if c.Services.SimulationTimeout <= 0 {
		c.Services.SimulationTimeout = Duration(DefaultSimulationTimeout)
	}
	if c.Datasets.Dir == "" {
		c.Datasets.Dir = DefaultDatasetDir
	}
	if c.Datasets.Default == "" {
		c.Datasets.Default = DefaultDataset
	}
	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"services.layout_url":     c.Services.LayoutURL,
		"services.simulation_url": c.Services.SimulationURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s %q: expected an http(s) URL", name, raw)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q: expected text or json", c.Logging.Format)
	}
	return nil
}

// LoggerConfig returns the settings of the process logger
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	history := "disabled"
	if c.History.Enabled {
		history = c.History.Path
	}
	summary := fmt.Sprintf("Listen: %s, Strict: %v\n", c.Server.Addr, c.Strict)
	summary += fmt.Sprintf("Layout: %s (%s), Simulation: %s (%s)\n",
		c.Services.LayoutURL, c.Services.LayoutTimeout.Duration(),
		c.Services.SimulationURL, c.Services.SimulationTimeout.Duration())
	summary += fmt.Sprintf("Datasets: %s (default %s, watch %v), History: %s",
		c.Datasets.Dir, c.Datasets.Default, c.Datasets.Watch, history)
	return summary
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
