package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/vigil/internal/models"
)

// Config represents the application configuration
type Config struct {
	Browser  BrowserConfig  `toml:"browser"`
	Runner   RunnerConfig   `toml:"runner"`
	Observer ObserverConfig `toml:"observer"`
	Report   ReportConfig   `toml:"report"`
	HTTP     HTTPConfig     `toml:"http"`
	Storage  StorageConfig  `toml:"storage"`
	Logging  LoggingConfig  `toml:"logging"`
	Watch    WatchConfig    `toml:"watch"`
}

// BrowserConfig controls how browser sessions are launched
type BrowserConfig struct {
	Headless     bool           `toml:"headless"`
	ChromePath   string         `toml:"chrome_path"`   // Empty = let chromedp locate Chrome
	Args         []string       `toml:"args"`          // Extra launch flags, "name" or "name=value"
	Permissions  []string       `toml:"permissions"`   // microphone, camera, notifications, clipboard, geolocation
	Viewport     ViewportConfig `toml:"viewport"`
	NoSandbox    bool           `toml:"no_sandbox"`    // Required when running as root inside containers
	StartTimeout string         `toml:"start_timeout"` // Launch + target reachability budget
}

// ViewportConfig is the page window size in CSS pixels
type ViewportConfig struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// RunnerConfig controls scenario execution
type RunnerConfig struct {
	BaseURL         string `toml:"base_url"`         // Frontend under test, relative navigate urls resolve against it
	APIURL          string `toml:"api_url"`          // Backend for http steps, defaults to base_url
	ScenarioTimeout string `toml:"scenario_timeout"` // Whole-scenario budget, scenario files may override
	StepTimeout     string `toml:"step_timeout"`     // Per-step budget when a step declares none
	PollInterval    string `toml:"poll_interval"`    // Default retryUntil poll interval
	FailurePolicy   string `toml:"failure_policy"`   // continue or abort
	FreshSession    bool   `toml:"fresh_session"`    // One session per scenario; false shares one session when concurrency is 1
	Concurrency     int    `toml:"concurrency"`      // Scenarios run in parallel, each with its own session
	ArtifactsDir    string `toml:"artifacts_dir"`    // Screenshots and other artifacts
}

// ObserverConfig is the default capture filter for scenarios that declare none
type ObserverConfig struct {
	Categories []string `toml:"categories"`
	Contains   string   `toml:"contains"`
	Pattern    string   `toml:"pattern"`
}

// ReportConfig controls the report sink
type ReportConfig struct {
	Format      string `toml:"format"`      // json or text
	Destination string `toml:"destination"` // stdout or file
	Dir         string `toml:"dir"`         // Report directory when destination is file
}

// HTTPConfig controls the client used by http steps and readiness polling
type HTTPConfig struct {
	Timeout   string  `toml:"timeout"`
	RateLimit float64 `toml:"rate_limit"` // Requests per second, 0 = unlimited
}

// StorageConfig contains storage backends
type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig contains Badger-specific configuration
type BadgerConfig struct {
	Enabled        bool   `toml:"enabled"`          // Selector registry and result history
	Path           string `toml:"path"`             // Database directory
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`       // trace, debug, info, warn, error
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Console timestamp layout
	Dir        string   `toml:"dir"`         // Log file directory, empty = logs/ next to the executable
}

// WatchConfig controls scheduled re-runs
type WatchConfig struct {
	Schedule string `toml:"schedule"` // cron expression or @every descriptor
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless: true,
			Viewport: ViewportConfig{
				Width:  1280,
				Height: 800,
			},
			StartTimeout: "30s",
		},
		Runner: RunnerConfig{
			BaseURL:         "http://localhost:5173",
			ScenarioTimeout: "2m",
			StepTimeout:     "10s",
			PollInterval:    "250ms",
			FailurePolicy:   string(models.FailurePolicyContinue),
			FreshSession:    true,
			Concurrency:     1,
			ArtifactsDir:    "./artifacts",
		},
		Report: ReportConfig{
			Format:      "text",
			Destination: "stdout",
			Dir:         "./reports",
		},
		HTTP: HTTPConfig{
			Timeout:   "15s",
			RateLimit: 0,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Enabled: true,
				Path:    "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Watch: WatchConfig{
			Schedule: "@every 5m",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
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

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies VIGIL_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Browser configuration
	if headless := os.Getenv("VIGIL_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if chromePath := os.Getenv("VIGIL_BROWSER_CHROME_PATH"); chromePath != "" {
		config.Browser.ChromePath = chromePath
	}
	if args := os.Getenv("VIGIL_BROWSER_ARGS"); args != "" {
		config.Browser.Args = splitList(args)
	}
	if permissions := os.Getenv("VIGIL_BROWSER_PERMISSIONS"); permissions != "" {
		config.Browser.Permissions = splitList(permissions)
	}
	if noSandbox := os.Getenv("VIGIL_BROWSER_NO_SANDBOX"); noSandbox != "" {
		if ns, err := strconv.ParseBool(noSandbox); err == nil {
			config.Browser.NoSandbox = ns
		}
	}
	if startTimeout := os.Getenv("VIGIL_BROWSER_START_TIMEOUT"); startTimeout != "" {
		config.Browser.StartTimeout = startTimeout
	}

	// Runner configuration
	if baseURL := os.Getenv("VIGIL_BASE_URL"); baseURL != "" {
		config.Runner.BaseURL = baseURL
	}
	if apiURL := os.Getenv("VIGIL_API_URL"); apiURL != "" {
		config.Runner.APIURL = apiURL
	}
	if timeout := os.Getenv("VIGIL_RUNNER_SCENARIO_TIMEOUT"); timeout != "" {
		config.Runner.ScenarioTimeout = timeout
	}
	if timeout := os.Getenv("VIGIL_RUNNER_STEP_TIMEOUT"); timeout != "" {
		config.Runner.StepTimeout = timeout
	}
	if poll := os.Getenv("VIGIL_RUNNER_POLL_INTERVAL"); poll != "" {
		config.Runner.PollInterval = poll
	}
	if policy := os.Getenv("VIGIL_RUNNER_FAILURE_POLICY"); policy != "" {
		config.Runner.FailurePolicy = policy
	}
	if concurrency := os.Getenv("VIGIL_RUNNER_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Runner.Concurrency = c
		}
	}
	if fresh := os.Getenv("VIGIL_RUNNER_FRESH_SESSION"); fresh != "" {
		if f, err := strconv.ParseBool(fresh); err == nil {
			config.Runner.FreshSession = f
		}
	}
	if dir := os.Getenv("VIGIL_ARTIFACTS_DIR"); dir != "" {
		config.Runner.ArtifactsDir = dir
	}

	// Report configuration
	if format := os.Getenv("VIGIL_REPORT_FORMAT"); format != "" {
		config.Report.Format = format
	}
	if destination := os.Getenv("VIGIL_REPORT_DESTINATION"); destination != "" {
		config.Report.Destination = destination
	}
	if dir := os.Getenv("VIGIL_REPORT_DIR"); dir != "" {
		config.Report.Dir = dir
	}

	// HTTP configuration
	if timeout := os.Getenv("VIGIL_HTTP_TIMEOUT"); timeout != "" {
		config.HTTP.Timeout = timeout
	}
	if rateLimit := os.Getenv("VIGIL_HTTP_RATE_LIMIT"); rateLimit != "" {
		if rl, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			config.HTTP.RateLimit = rl
		}
	}

	// Storage configuration
	if enabled := os.Getenv("VIGIL_BADGER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Storage.Badger.Enabled = e
		}
	}
	if path := os.Getenv("VIGIL_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	// Logging configuration
	if level := os.Getenv("VIGIL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VIGIL_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}

	// Watch configuration
	if schedule := os.Getenv("VIGIL_WATCH_SCHEDULE"); schedule != "" {
		config.Watch.Schedule = schedule
	}
}

// FlagOverrides carries command-line values. Zero values leave the config untouched.
type FlagOverrides struct {
	Headless    *bool
	BaseURL     string
	TimeoutMS   int
	Report      string
	Out         string
	Concurrency int
	LogLevel    string
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	// Command-line flags have highest priority
	if flags.Headless != nil {
		config.Browser.Headless = *flags.Headless
	}
	if flags.BaseURL != "" {
		config.Runner.BaseURL = flags.BaseURL
	}
	if flags.TimeoutMS > 0 {
		config.Runner.ScenarioTimeout = (time.Duration(flags.TimeoutMS) * time.Millisecond).String()
	}
	if flags.Report != "" {
		config.Report.Format = flags.Report
	}
	if flags.Out != "" {
		config.Report.Destination = "file"
		config.Report.Dir = flags.Out
		config.Runner.ArtifactsDir = flags.Out
	}
	if flags.Concurrency > 0 {
		config.Runner.Concurrency = flags.Concurrency
	}
	if flags.LogLevel != "" {
		config.Logging.Level = flags.LogLevel
	}
}

// Validate checks values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"browser.start_timeout":   c.Browser.StartTimeout,
		"runner.scenario_timeout": c.Runner.ScenarioTimeout,
		"runner.step_timeout":     c.Runner.StepTimeout,
		"runner.poll_interval":    c.Runner.PollInterval,
		"http.timeout":            c.HTTP.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	switch c.Report.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid report.format %q: expected json or text", c.Report.Format)
	}
	switch c.Report.Destination {
	case "stdout", "file":
	default:
		return fmt.Errorf("invalid report.destination %q: expected stdout or file", c.Report.Destination)
	}
	switch models.FailurePolicy(c.Runner.FailurePolicy) {
	case models.FailurePolicyContinue, models.FailurePolicyAbort:
	default:
		return fmt.Errorf("invalid runner.failure_policy %q: expected continue or abort", c.Runner.FailurePolicy)
	}
	if c.Runner.Concurrency < 1 {
		return fmt.Errorf("runner.concurrency must be at least 1, got %d", c.Runner.Concurrency)
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport must be positive, got %dx%d", c.Browser.Viewport.Width, c.Browser.Viewport.Height)
	}
	return nil
}

// SessionConfig builds the browser session configuration
func (c *Config) SessionConfig() models.SessionConfig {
	return models.SessionConfig{
		Headless:    c.Browser.Headless,
		ChromePath:  c.Browser.ChromePath,
		Args:        append([]string(nil), c.Browser.Args...),
		Permissions: append([]string(nil), c.Browser.Permissions...),
		Viewport: models.Viewport{
			Width:  c.Browser.Viewport.Width,
			Height: c.Browser.Viewport.Height,
		},
		NoSandbox:    c.Browser.NoSandbox,
		StartTimeout: ParseDurationOr(c.Browser.StartTimeout, 30*time.Second),
		TargetURL:    c.Runner.BaseURL,
	}
}

// CaptureFilter returns the default capture filter
func (c *Config) CaptureFilter() models.ObservationFilter {
	filter := models.ObservationFilter{
		Contains: c.Observer.Contains,
		Pattern:  c.Observer.Pattern,
	}
	for _, category := range c.Observer.Categories {
		filter.Categories = append(filter.Categories, models.ObservationCategory(category))
	}
	return filter
}

// APIBaseURL returns api_url, falling back to base_url
func (c *Config) APIBaseURL() string {
	if c.Runner.APIURL != "" {
		return c.Runner.APIURL
	}
	return c.Runner.BaseURL
}

// ParseDurationOr parses value, returning def when it is empty or invalid
func ParseDurationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ValidateSchedule validates a watch schedule (5-field cron or @every/@hourly descriptors)
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// splitList splits a comma-separated env value, dropping empty entries
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
