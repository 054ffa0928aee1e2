package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":3000" {
		t.Errorf("Server.Addr = %s, want :3000", cfg.Server.Addr)
	}
	if cfg.Services.LayoutURL != "http://127.0.0.1:8081/calculate_layout" {
		t.Errorf("Services.LayoutURL = %s", cfg.Services.LayoutURL)
	}
	if cfg.Services.LayoutTimeout.Duration() != 10*time.Second {
		t.Errorf("Services.LayoutTimeout = %s, want 10s", cfg.Services.LayoutTimeout.Duration())
	}
	if cfg.Services.SimulationTimeout.Duration() != 30*time.Second {
		t.Errorf("Services.SimulationTimeout = %s, want 30s", cfg.Services.SimulationTimeout.Duration())
	}
	if cfg.Datasets.Default != "hydro_valley_instance.json" {
		t.Errorf("Datasets.Default = %s", cfg.Datasets.Default)
	}
	if !cfg.Datasets.Watch || !cfg.History.Enabled {
		t.Error("watching and history should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9000"
services:
  simulation_timeout: 2m
datasets:
  watch: false
strict: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %s, want :9000", cfg.Server.Addr)
	}
	if cfg.Services.SimulationTimeout.Duration() != 2*time.Minute {
		t.Errorf("SimulationTimeout = %s, want 2m", cfg.Services.SimulationTimeout.Duration())
	}
	if cfg.Services.LayoutTimeout.Duration() != DefaultLayoutTimeout {
		t.Errorf("LayoutTimeout = %s, want default", cfg.Services.LayoutTimeout.Duration())
	}
	if cfg.Datasets.Watch {
		t.Error("Datasets.Watch should be false")
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled should keep its default")
	}
	if !cfg.Strict {
		t.Error("Strict should be true")
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hydrovalley.toml")
	content := `
strict = true

[services]
layout_url = "http://layout.internal:8081/calculate_layout"
layout_timeout = "3s"

[history]
enabled = false

[logging]
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if cfg.Services.LayoutURL != "http://layout.internal:8081/calculate_layout" {
		t.Errorf("LayoutURL = %s", cfg.Services.LayoutURL)
	}
	if cfg.Services.LayoutTimeout.Duration() != 3*time.Second {
		t.Errorf("LayoutTimeout = %s, want 3s", cfg.Services.LayoutTimeout.Duration())
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled should be false")
	}
	if got := cfg.LoggerConfig(); got.Format != "json" || got.Level != "info" {
		t.Errorf("LoggerConfig() = %+v", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"bad yaml", "config.yaml", "server: [", "parse config"},
		{"bad duration", "config.yaml", "services:\n  layout_timeout: soon\n", "parse config"},
		{"bad toml", "config.toml", "strict = ", "parse config"},
		{"bad url", "config.yaml", "services:\n  layout_url: \"localhost:8081\"\n", "services.layout_url"},
		{"bad format", "config.yaml", "logging:\n  format: xml\n", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, _, err := LoadFromPath(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "nested", name)

			cfg := DefaultConfig()
			cfg.Server.Addr = "127.0.0.1:4000"
			cfg.Services.SimulationTimeout = Duration(45 * time.Second)
			cfg.Datasets.Dir = "/srv/valleys"
			cfg.Strict = true

			if err := cfg.Save(configPath); err != nil {
				t.Fatalf("Save() error: %v", err)
			}

			loaded, path, err := LoadFromPath(configPath)
			if err != nil {
				t.Fatalf("LoadFromPath() error: %v", err)
			}
			if path != configPath {
				t.Errorf("path = %s, want %s", path, configPath)
			}
			if *loaded != *cfg {
				t.Errorf("loaded = %+v, want %+v", loaded, cfg)
			}
		})
	}
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	t.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	// Should find config in working directory
	if found := FindConfigPath(); found == "" {
		t.Error("FindConfigPath() should find config in working directory")
	}

	// Explicit path doesn't exist, should fall back
	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	if found := FindConfigPath(); found == "" {
		t.Error("FindConfigPath() should fall back when env path doesn't exist")
	}

	// Explicit path that exists wins
	explicit := filepath.Join(t.TempDir(), "explicit.toml")
	if err := cfg.Save(explicit); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, explicit)
	if found := FindConfigPath(); found != explicit {
		t.Errorf("FindConfigPath() = %s, want %s", found, explicit)
	}
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)

	if d.Duration() != 5*time.Minute {
		t.Errorf("Duration() = %s, want 5m", d.Duration())
	}

	marshaled, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error: %v", err)
	}
	if marshaled != "5m0s" {
		t.Errorf("MarshalYAML() = %v, want 5m0s", marshaled)
	}

	var parsed Duration
	if err := parsed.UnmarshalText([]byte("1h30m")); err != nil {
		t.Fatalf("UnmarshalText() error: %v", err)
	}
	if parsed.Duration() != 90*time.Minute {
		t.Errorf("UnmarshalText() = %s, want 1h30m", parsed.Duration())
	}
}
