// Package config loads and validates the session configuration the CLI
// uses to open trace streams: which files to open, per-stream filters
// and clock calibration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	// Session holds registry-level settings.
	Session SessionConfig `yaml:"session" json:"session"`

	// Streams lists the trace sources to open, in order.
	Streams []StreamConfig `yaml:"streams" json:"streams"`
}

// SessionConfig holds registry-level settings.
type SessionConfig struct {
	// MaxStreams caps how many streams may be open at once.
	MaxStreams int `yaml:"max_streams" json:"max_streams"`

	// Views names the view bits ID filtering acts on. Valid values:
	// "text", "graph", "event". Empty means all three.
	Views []string `yaml:"views,omitempty" json:"views,omitempty"`
}

// StreamConfig describes one trace source.
type StreamConfig struct {
	// File is the path of the trace file.
	File string `yaml:"file" json:"file"`

	// Format names the decoder, currently "jsonl".
	Format string `yaml:"format" json:"format"`

	// ClockOffset is added to every timestamp of this stream, in
	// nanoseconds.
	ClockOffset int64 `yaml:"clock_offset,omitempty" json:"clock_offset,omitempty"`

	// Filters holds the initial filter state of the stream.
	Filters FiltersConfig `yaml:"filters,omitempty" json:"filters,omitempty"`
}

// FiltersConfig mirrors the six per-stream ID filters plus the content
// filter expression.
type FiltersConfig struct {
	ShowTasks  []int  `yaml:"show_tasks,omitempty" json:"show_tasks,omitempty"`
	HideTasks  []int  `yaml:"hide_tasks,omitempty" json:"hide_tasks,omitempty"`
	ShowEvents []int  `yaml:"show_events,omitempty" json:"show_events,omitempty"`
	HideEvents []int  `yaml:"hide_events,omitempty" json:"hide_events,omitempty"`
	ShowCPUs   []int  `yaml:"show_cpus,omitempty" json:"show_cpus,omitempty"`
	HideCPUs   []int  `yaml:"hide_cpus,omitempty" json:"hide_cpus,omitempty"`
	Content    string `yaml:"content,omitempty" json:"content,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			MaxStreams: 256,
		},
	}
}

// LoadConfig loads configuration from a file, YAML or JSON by
// extension.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		err = json.Unmarshal(data, config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		// Try YAML first, then JSON
		err = yaml.Unmarshal(data, config)
		if err != nil {
			err = json.Unmarshal(data, config)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()
	if verr := config.Validate(); !verr.IsEmpty() {
		return nil, verr
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Session.MaxStreams == 0 {
		c.Session.MaxStreams = 256
	}
	for i := range c.Streams {
		if c.Streams[i].Format == "" {
			c.Streams[i].Format = "jsonl"
		}
	}
}

// Validate checks the configuration for problems a later Open would
// surface less clearly.
func (c *Config) Validate() ValidationErrors {
	var errs []ValidationError
	if c.Session.MaxStreams <= 0 {
		errs = append(errs, NewValidationError("session.max_streams",
			"must be positive",
			"remove the field to use the default of 256"))
	}
	for _, view := range c.Session.Views {
		switch view {
		case "text", "graph", "event":
		default:
			errs = append(errs, ValidationError{
				Field:       "session.views",
				Message:     fmt.Sprintf("unknown view %q", view),
				Suggestion:  "use one of the valid view names",
				ValidValues: []string{"text", "graph", "event"},
			})
		}
	}
	for i, sc := range c.Streams {
		if sc.File == "" {
			errs = append(errs, NewValidationError(
				fmt.Sprintf("streams[%d].file", i),
				"missing trace file path",
				"set the file field to the trace you want to open"))
		}
	}
	return NewValidationErrors(errs)
}
