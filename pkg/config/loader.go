package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Loader handles configuration loading from multiple sources: defaults,
// a config file found on the search path, then environment overrides.
type Loader struct {
	searchPaths  []string
	envPrefix    string
	allowMissing bool
	configFile   string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		searchPaths:  defaultSearchPaths(),
		envPrefix:    "TRACEVIEW_",
		allowMissing: true,
	}
}

func defaultSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".traceview"))
	}
	paths = append(paths, "/etc/traceview")
	return paths
}

// WithSearchPaths sets custom search paths for configuration files.
func (l *Loader) WithSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// WithConfigFile sets a specific configuration file to load.
func (l *Loader) WithConfigFile(file string) *Loader {
	l.configFile = file
	return l
}

// RequireConfigFile makes the configuration file mandatory.
func (l *Loader) RequireConfigFile() *Loader {
	l.allowMissing = false
	return l
}

// Load loads configuration in priority order: defaults, config file,
// environment variables.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	path, err := l.findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	l.applyEnvOverrides(config)
	config.applyDefaults()
	if verr := config.Validate(); !verr.IsEmpty() {
		return nil, verr
	}
	return config, nil
}

func (l *Loader) findConfigFile() (string, error) {
	if l.configFile != "" {
		if _, err := os.Stat(l.configFile); err != nil {
			return "", fmt.Errorf("config file %s: %w", l.configFile, err)
		}
		return l.configFile, nil
	}
	for _, dir := range l.searchPaths {
		for _, name := range []string{"traceview.yaml", "traceview.yml", "traceview.json"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	if !l.allowMissing {
		return "", fmt.Errorf("no configuration file found in %s", strings.Join(l.searchPaths, ", "))
	}
	return "", nil
}

// applyEnvOverrides maps session-level environment variables onto the
// config. Stream lists cannot be expressed through the environment.
func (l *Loader) applyEnvOverrides(config *Config) {
	if v := os.Getenv(l.envPrefix + "MAX_STREAMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Session.MaxStreams = n
		}
	}
	if v := os.Getenv(l.envPrefix + "VIEWS"); v != "" {
		config.Session.Views = strings.Split(v, ",")
	}
}
