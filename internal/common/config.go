package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the smoke run configuration
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Browser  BrowserConfig  `toml:"browser" yaml:"browser"`
	Timeouts TimeoutsConfig `toml:"timeouts" yaml:"timeouts"`
	Export   ExportConfig   `toml:"export" yaml:"export"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
}

// ServerConfig configures the static asset server. Root defaults to the working directory.
type ServerConfig struct {
	Root string `toml:"root" yaml:"root" validate:"required"`
	Host string `toml:"host" yaml:"host" validate:"required,ip"`
}

type BrowserConfig struct {
	Engines        []string `toml:"engines" yaml:"engines" validate:"required,min=1,dive,oneof=chromium firefox webkit"`
	Headless       bool     `toml:"headless" yaml:"headless"`
	ViewportWidth  int      `toml:"viewport_width" yaml:"viewport_width" validate:"gt=0"`
	ViewportHeight int      `toml:"viewport_height" yaml:"viewport_height" validate:"gt=0"`
}

// TimeoutsConfig holds duration strings, e.g. "5s", "2200ms"
type TimeoutsConfig struct {
	Step          string `toml:"step" yaml:"step" validate:"required"`                     // wait for the next section to activate
	Navigation    string `toml:"navigation" yaml:"navigation" validate:"required"`         // document load up to DOMContentLoaded
	Overlay       string `toml:"overlay" yaml:"overlay" validate:"required"`               // submission overlay
	DownloadReady string `toml:"download_ready" yaml:"download_ready" validate:"required"` // download control after submission
	Transcript    string `toml:"transcript" yaml:"transcript" validate:"required"`         // terminal transcript completion
	TimerWait     string `toml:"timer_wait" yaml:"timer_wait" validate:"required"`         // real time between the two countdown reads
}

type ExportConfig struct {
	MaxAttempts  int    `toml:"max_attempts" yaml:"max_attempts" validate:"gt=0"`
	AttemptDelay string `toml:"attempt_delay" yaml:"attempt_delay" validate:"required"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output" yaml:"output" validate:"dive,oneof=stdout console file"`
}

// NewDefaultConfig returns the configuration of the standard smoke run
func NewDefaultConfig() *Config {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}

	return &Config{
		Server: ServerConfig{
			Root: root,
			Host: "127.0.0.1",
		},
		Browser: BrowserConfig{
			Engines:        []string{"chromium", "firefox"},
			Headless:       true,
			ViewportWidth:  1440,
			ViewportHeight: 980,
		},
		Timeouts: TimeoutsConfig{
			Step:          "5s",
			Navigation:    "30s",
			Overlay:       "5s",
			DownloadReady: "55s",
			Transcript:    "45s",
			TimerWait:     "2200ms",
		},
		Export: ExportConfig{
			MaxAttempts:  60,
			AttemptDelay: "500ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> files (in order) -> env.
// Files ending in .yaml or .yml are parsed as YAML, everything else as TOML.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = toml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if root := os.Getenv("PORTAL_SMOKE_ROOT"); root != "" {
		config.Server.Root = root
	}

	if engines := os.Getenv("PORTAL_SMOKE_ENGINES"); engines != "" {
		if list := splitList(engines); len(list) > 0 {
			config.Browser.Engines = list
		}
	}

	if headless := os.Getenv("PORTAL_SMOKE_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}

	if level := os.Getenv("PORTAL_SMOKE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command line flags (highest priority). Zero values are ignored.
func ApplyFlagOverrides(config *Config, root string, engines []string, headless *bool) {
	if root != "" {
		config.Server.Root = root
	}
	var list []string
	for _, e := range engines {
		list = append(list, splitList(e)...)
	}
	if len(list) > 0 {
		config.Browser.Engines = list
	}
	if headless != nil {
		config.Browser.Headless = *headless
	}
}

// Validate checks field constraints and that every duration parses
func (c *Config) Validate() error {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	for i, e := range c.Browser.Engines {
		c.Browser.Engines[i] = strings.ToLower(strings.TrimSpace(e))
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, value := range map[string]string{
		"timeouts.step":           c.Timeouts.Step,
		"timeouts.navigation":     c.Timeouts.Navigation,
		"timeouts.overlay":        c.Timeouts.Overlay,
		"timeouts.download_ready": c.Timeouts.DownloadReady,
		"timeouts.transcript":     c.Timeouts.Transcript,
		"timeouts.timer_wait":     c.Timeouts.TimerWait,
		"export.attempt_delay":    c.Export.AttemptDelay,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid configuration: %s must be positive, got %s", name, value)
		}
	}

	info, err := os.Stat(c.Server.Root)
	if err != nil {
		return fmt.Errorf("invalid configuration: server.root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid configuration: server.root %s is not a directory", c.Server.Root)
	}
	return nil
}

// Duration parses a validated duration string, falling back to def on error
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
