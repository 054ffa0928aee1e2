package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "HYDROVALLEY_CONFIG"
	// ConfigFileName is the default config file name
	ConfigFileName = "hydrovalley.yaml"
	// TOMLFileName is the working directory alternative in TOML
	TOMLFileName = "hydrovalley.toml"
	// ConfigDirName is the config directory name under XDG
	ConfigDirName = "hydrovalley"
)

// FindConfigPath searches for a config file in priority order:
//  1. $HYDROVALLEY_CONFIG
//  2. ./hydrovalley.yaml, then ./hydrovalley.toml
//  3. config.yaml or config.toml under $XDG_CONFIG_HOME/hydrovalley,
//     ~/.config/hydrovalley and /etc/hydrovalley
//
// Returns empty string if no config file found
func FindConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" && fileExists(path) {
		return path
	}

	for _, name := range []string{ConfigFileName, TOMLFileName} {
		if fileExists(name) {
			if abs, err := filepath.Abs(name); err == nil {
				return abs
			}
			return name
		}
	}

	for _, dir := range searchDirs() {
		for _, name := range []string{"config.yaml", "config.toml"} {
			path := filepath.Join(dir, name)
			if fileExists(path) {
				return path
			}
		}
	}
	return ""
}

func searchDirs() []string {
	var dirs []string
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		dirs = append(dirs, filepath.Join(xdgHome, ConfigDirName))
	}
	if home := os.Getenv("HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", ConfigDirName))
	}
	return append(dirs, filepath.Join("/etc", ConfigDirName))
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
