package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Services ServicesConfig `yaml:"services" toml:"services"`
	Datasets DatasetsConfig `yaml:"datasets" toml:"datasets"`
	History  HistoryConfig  `yaml:"history" toml:"history"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Strict   bool           `yaml:"strict" toml:"strict"` // reject dangling references
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string   `yaml:"addr" toml:"addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// ServicesConfig locates the external layout and simulation services
type ServicesConfig struct {
	LayoutURL         string   `yaml:"layout_url" toml:"layout_url"`
	LayoutTimeout     Duration `yaml:"layout_timeout" toml:"layout_timeout"`
	SimulationURL     string   `yaml:"simulation_url" toml:"simulation_url"`
	SimulationTimeout Duration `yaml:"simulation_timeout" toml:"simulation_timeout"`
}

// DatasetsConfig holds the dataset directory settings
type DatasetsConfig struct {
	Dir     string `yaml:"dir" toml:"dir"`
	Default string `yaml:"default" toml:"default"`
	Watch   bool   `yaml:"watch" toml:"watch"`
}

// HistoryConfig holds run history settings
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text or json
}

// Duration wraps time.Duration for YAML and TOML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by TOML
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
