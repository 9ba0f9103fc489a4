package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, config.Server.Root)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, []string{"chromium", "firefox"}, config.Browser.Engines)
	assert.True(t, config.Browser.Headless)
	assert.Equal(t, 1440, config.Browser.ViewportWidth)
	assert.Equal(t, 980, config.Browser.ViewportHeight)
	assert.Equal(t, 60, config.Export.MaxAttempts)
	assert.Equal(t, "500ms", config.Export.AttemptDelay)
	assert.Equal(t, "2200ms", config.Timeouts.TimerWait)
	assert.Equal(t, "30s", config.Timeouts.Navigation)
	assert.NoError(t, config.Validate())
}

func TestLoadFromFilesMergesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "base.toml", `
[browser]
engines = ["webkit"]
headless = false

[export]
max_attempts = 10
`)
	second := writeFile(t, dir, "override.yaml", `
export:
  attempt_delay: 250ms
logging:
  level: debug
`)

	config, err := LoadFromFiles(first, "", second)
	require.NoError(t, err)

	assert.Equal(t, []string{"webkit"}, config.Browser.Engines)
	assert.False(t, config.Browser.Headless)
	assert.Equal(t, 10, config.Export.MaxAttempts)
	assert.Equal(t, "250ms", config.Export.AttemptDelay)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "5s", config.Timeouts.Step)
}

func TestLoadFromFilesErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFiles(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	bad := writeFile(t, dir, "bad.toml", "[browser\nengines = 1")
	_, err = LoadFromFiles(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTAL_SMOKE_ROOT", dir)
	t.Setenv("PORTAL_SMOKE_ENGINES", " webkit , chromium ,")
	t.Setenv("PORTAL_SMOKE_HEADLESS", "false")
	t.Setenv("PORTAL_SMOKE_LOG_LEVEL", "warn")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, dir, config.Server.Root)
	assert.Equal(t, []string{"webkit", "chromium"}, config.Browser.Engines)
	assert.False(t, config.Browser.Headless)
	assert.Equal(t, "warn", config.Logging.Level)
}

func TestEnvOverridesIgnoreInvalidBool(t *testing.T) {
	t.Setenv("PORTAL_SMOKE_HEADLESS", "sometimes")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.True(t, config.Browser.Headless)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	headless := false

	ApplyFlagOverrides(config, "/srv/portal", []string{"webkit", "chromium,firefox"}, &headless)

	assert.Equal(t, "/srv/portal", config.Server.Root)
	assert.Equal(t, []string{"webkit", "chromium", "firefox"}, config.Browser.Engines)
	assert.False(t, config.Browser.Headless)

	ApplyFlagOverrides(config, "", nil, nil)
	assert.Equal(t, "/srv/portal", config.Server.Root)
	assert.Len(t, config.Browser.Engines, 3)
	assert.False(t, config.Browser.Headless)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{
			name:   "engine names are normalised",
			mutate: func(c *Config) { c.Browser.Engines = []string{" Chromium", "WEBKIT"} },
		},
		{
			name:    "unknown engine",
			mutate:  func(c *Config) { c.Browser.Engines = []string{"chromium", "opera"} },
			wantErr: "invalid configuration",
		},
		{
			name:    "no engines",
			mutate:  func(c *Config) { c.Browser.Engines = nil },
			wantErr: "invalid configuration",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Export.MaxAttempts = 0 },
			wantErr: "invalid configuration",
		},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.Timeouts.Transcript = "forever" },
			wantErr: "timeouts.transcript",
		},
		{
			name:    "navigation timeout",
			mutate:  func(c *Config) { c.Timeouts.Navigation = "soon" },
			wantErr: "timeouts.navigation",
		},
		{
			name:    "negative duration",
			mutate:  func(c *Config) { c.Export.AttemptDelay = "-1s" },
			wantErr: "export.attempt_delay must be positive",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "invalid configuration",
		},
		{
			name:    "missing root",
			mutate:  func(c *Config) { c.Server.Root = filepath.Join(os.TempDir(), "portal-smoke-missing-root") },
			wantErr: "server.root",
		},
		{
			name:    "bad host",
			mutate:  func(c *Config) { c.Server.Host = "localhost:80" },
			wantErr: "invalid configuration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 2200*time.Millisecond, Duration("2200ms", time.Second))
	assert.Equal(t, time.Second, Duration("nope", time.Second))
	assert.Equal(t, time.Second, Duration("0s", time.Second))
}
