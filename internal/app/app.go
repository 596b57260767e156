// -----------------------------------------------------------------------
// App - wires configuration, storage, browser sessions, runner and reports
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/browser"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/report"
	"github.com/ternarybob/vigil/internal/runner"
	"github.com/ternarybob/vigil/internal/scenario"
	"github.com/ternarybob/vigil/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage is nil when [storage.badger] is disabled
	StorageManager interfaces.StorageManager
	Registry       interfaces.SelectorRegistry
	Results        interfaces.ResultStorage

	Sessions interfaces.SessionFactory
	Loader   *scenario.Loader
	Runner   *runner.Runner
	Sink     *report.Sink

	sinkOptions []report.Option
}

// Option configures an App before its components are built
type Option func(*App)

// WithSessionFactory replaces the chromedp session manager
func WithSessionFactory(factory interfaces.SessionFactory) Option {
	return func(a *App) { a.Sessions = factory }
}

// WithReportOptions passes options through to the report sink
func WithReportOptions(options ...report.Option) Option {
	return func(a *App) { a.sinkOptions = append(a.sinkOptions, options...) }
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger, options ...Option) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	for _, option := range options {
		option(app)
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if app.Sessions == nil {
		app.Sessions = browser.NewManager(logger)
	}
	app.Loader = scenario.NewLoader(logger, common.ScenarioVariables(cfg))
	app.Sink = report.NewSink(logger, cfg.Report, app.sinkOptions...)

	runnerOptions := []runner.Option{runner.WithRegistry(app.Registry)}
	if app.Results != nil {
		runnerOptions = append(runnerOptions, runner.WithResultStorage(app.Results))
	}
	r, err := runner.New(logger, app.Sessions, runner.OptionsFromConfig(cfg), runnerOptions...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	app.Runner = r

	logger.Debug().
		Bool("storage_enabled", app.StorageManager != nil).
		Str("base_url", cfg.Runner.BaseURL).
		Str("report_format", cfg.Report.Format).
		Str("report_destination", cfg.Report.Destination).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens badger when enabled. Without it drift detection still works
// within one process through an in-memory registry.
func (a *App) initStorage() error {
	if !a.Config.Storage.Badger.Enabled {
		a.Registry = runner.NewMemoryRegistry()
		a.Logger.Debug().Msg("Persistent storage disabled, using in-memory selector registry")
		return nil
	}

	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	a.Registry = storageManager.SelectorRegistry()
	a.Results = storageManager.ResultStorage()

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// LoadScenarios loads a file or directory and applies the name/tag filter.
// An empty selection is an error: a run that checks nothing must not pass.
func (a *App) LoadScenarios(path string, names, tags []string) ([]models.Scenario, error) {
	scenarios, err := a.Loader.Load(path)
	if err != nil {
		return nil, err
	}
	selected := scenario.Filter(scenarios, names, tags)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no scenarios selected from %s (loaded %d)", path, len(scenarios))
	}
	a.Logger.Info().
		Str("path", path).
		Int("loaded", len(scenarios)).
		Int("selected", len(selected)).
		Msg("Scenarios loaded")
	return selected, nil
}

// RunOnce runs scenarios, reporting each result as it finalizes and the summary last
func (a *App) RunOnce(ctx context.Context, scenarios []models.Scenario) *models.RunSummary {
	summary := a.Runner.RunSuite(ctx, scenarios, func(result *models.Result) {
		a.Sink.Write(result)
	})
	a.Sink.WriteSummary(summary)
	return summary
}

// Watch reloads and runs the scenarios at path on schedule until ctx ends.
// Files are reloaded on every tick so edits apply without a restart.
func (a *App) Watch(ctx context.Context, path string, names, tags []string, schedule string) error {
	if _, err := a.LoadScenarios(path, names, tags); err != nil {
		return err
	}

	scheduler, err := runner.NewScheduler(a.Logger, schedule, func(ctx context.Context) {
		scenarios, err := a.LoadScenarios(path, names, tags)
		if err != nil {
			a.Logger.Error().Err(err).Str("path", path).Msg("Failed to reload scenarios, skipping run")
			return
		}
		summary := a.RunOnce(ctx, scenarios)
		a.Logger.Info().
			Str("run_id", summary.RunID).
			Int("exit_code", summary.ExitCode).
			Msg("Watch run complete")
	})
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	scheduler.Stop()
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.StorageManager = nil
		a.Logger.Debug().Msg("Storage closed")
	}
	return nil
}
