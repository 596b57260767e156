package main

import (
	"fmt"
	"os"

	"github.com/ternarybob/vigil/internal/app"
	"github.com/ternarybob/vigil/internal/common"
)

// loadConfig runs the startup sequence shared by every command:
// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
// 2. Apply CLI overrides (highest priority)
// 3. Validate
func loadConfig(overrides common.FlagOverrides) (*common.Config, error) {
	files := configFiles
	if len(files) == 0 {
		// Check current directory first, then deployments/local for runs from the project root
		if _, err := os.Stat("vigil.toml"); err == nil {
			files = append(files, "vigil.toml")
		} else if _, err := os.Stat("deployments/local/vigil.toml"); err == nil {
			files = append(files, "deployments/local/vigil.toml")
		}
	}

	config, err := common.LoadFromFiles(files...)
	if err != nil {
		// The configured logger does not exist yet
		common.GetLogger().Error().Strs("paths", files).Err(err).Msg("Failed to load configuration files")
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if overrides.LogLevel == "" {
		overrides.LogLevel = logLevel
	}
	common.ApplyFlagOverrides(config, overrides)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// newApp loads configuration, initializes the logger and wires the application.
// The banner is skipped when JSON reports go to stdout so the stream stays parseable.
func newApp(overrides common.FlagOverrides) (*app.App, error) {
	config, err := loadConfig(overrides)
	if err != nil {
		return nil, err
	}

	logger := common.InitLogger(config)
	if !(config.Report.Format == "json" && config.Report.Destination == "stdout") {
		common.PrintBanner(config, common.GetVersion())
	}

	logger.Debug().
		Strs("config_files", configFiles).
		Str("base_url", config.Runner.BaseURL).
		Bool("headless", config.Browser.Headless).
		Str("log_level", config.Logging.Level).
		Bool("storage_enabled", config.Storage.Badger.Enabled).
		Msg("Resolved configuration")

	application, err := app.New(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}
