package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig_IsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())

	assert.True(t, config.Browser.Headless)
	assert.Equal(t, 30*time.Second, config.SessionConfig().StartTimeout)
	assert.Equal(t, 1, config.Runner.Concurrency)
	assert.Equal(t, "text", config.Report.Format)
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	base := writeConfigFile(t, "base.toml", `
[browser]
permissions = ["microphone"]

[browser.viewport]
width = 1440
height = 900

[runner]
base_url = "http://localhost:5173"
api_url = "http://localhost:5175"
`)
	override := writeConfigFile(t, "override.toml", `
[runner]
base_url = "http://localhost:4173"
concurrency = 3
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4173", config.Runner.BaseURL)
	assert.Equal(t, "http://localhost:5175", config.APIBaseURL())
	assert.Equal(t, 3, config.Runner.Concurrency)
	assert.Equal(t, []string{"microphone"}, config.Browser.Permissions)
	assert.Equal(t, 1440, config.SessionConfig().Viewport.Width)
	// untouched defaults survive
	assert.Equal(t, "10s", config.Runner.StepTimeout)
}

func TestLoadFromFiles_Errors(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := writeConfigFile(t, "bad.toml", "[runner\nbase_url = ")
	_, err = LoadFromFiles(bad)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("VIGIL_BASE_URL", "http://127.0.0.1:5176")
	t.Setenv("VIGIL_BROWSER_HEADLESS", "false")
	t.Setenv("VIGIL_BROWSER_PERMISSIONS", "microphone, camera ,")
	t.Setenv("VIGIL_RUNNER_CONCURRENCY", "not-a-number")
	t.Setenv("VIGIL_LOG_OUTPUT", "stdout,file")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:5176", config.Runner.BaseURL)
	assert.False(t, config.Browser.Headless)
	assert.Equal(t, []string{"microphone", "camera"}, config.Browser.Permissions)
	assert.Equal(t, 1, config.Runner.Concurrency, "invalid numbers are ignored")
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
}

func TestApplyFlagOverrides_HighestPriority(t *testing.T) {
	t.Setenv("VIGIL_BASE_URL", "http://from-env")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	headless := false
	ApplyFlagOverrides(config, FlagOverrides{
		Headless:  &headless,
		BaseURL:   "http://from-flag",
		TimeoutMS: 1500,
		Report:    "json",
		Out:       "./out",
	})

	assert.False(t, config.Browser.Headless)
	assert.Equal(t, "http://from-flag", config.Runner.BaseURL)
	assert.Equal(t, 1500*time.Millisecond, ParseDurationOr(config.Runner.ScenarioTimeout, 0))
	assert.Equal(t, "json", config.Report.Format)
	assert.Equal(t, "file", config.Report.Destination)
	assert.Equal(t, "./out", config.Runner.ArtifactsDir)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad duration", func(c *Config) { c.Runner.StepTimeout = "ten seconds" }},
		{"bad format", func(c *Config) { c.Report.Format = "xml" }},
		{"bad destination", func(c *Config) { c.Report.Destination = "s3" }},
		{"bad policy", func(c *Config) { c.Runner.FailurePolicy = "retry" }},
		{"zero concurrency", func(c *Config) { c.Runner.Concurrency = 0 }},
		{"zero viewport", func(c *Config) { c.Browser.Viewport.Width = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDurationOr("", 5*time.Second))
	assert.Equal(t, 5*time.Second, ParseDurationOr("bogus", 5*time.Second))
	assert.Equal(t, 5*time.Second, ParseDurationOr("-1s", 5*time.Second))
	assert.Equal(t, 250*time.Millisecond, ParseDurationOr("250ms", 5*time.Second))
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("@every 5m"))
	assert.NoError(t, ValidateSchedule("*/10 * * * *"))
	assert.Error(t, ValidateSchedule("every five minutes"))
}

func TestCaptureFilter(t *testing.T) {
	config := NewDefaultConfig()
	config.Observer.Categories = []string{"console", "websocket"}
	config.Observer.Pattern = "error"

	filter := config.CaptureFilter()
	require.Len(t, filter.Categories, 2)
	assert.Equal(t, "websocket", string(filter.Categories[1]))
	assert.Equal(t, "error", filter.Pattern)
}
