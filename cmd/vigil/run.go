package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vigil/internal/common"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario-file|dir>",
	Short: "Run scenarios once and exit with the aggregate status",
	Long: `Runs every scenario in a file or directory and reports each result.
Exit code 0 when all passed, 1 when any failed, 2 when any errored or the run could not start.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runHeadless      bool
	runBaseURL       string
	runTimeoutMS     int
	runReport        string
	runOut           string
	runConcurrency   int
	runScenarioNames []string
	runTags          []string
)

func init() {
	addRunFlags(runCmd)
}

// addRunFlags registers the flags shared by run and watch
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&runHeadless, "headless", true, "Run the browser headless (overrides config)")
	cmd.Flags().StringVar(&runBaseURL, "base-url", "", "Frontend base URL (overrides config)")
	cmd.Flags().IntVar(&runTimeoutMS, "timeout", 0, "Per-scenario timeout in milliseconds (overrides config)")
	cmd.Flags().StringVar(&runReport, "report", "", "Report format: json or text (overrides config)")
	cmd.Flags().StringVar(&runOut, "out", "", "Write reports and artifacts to this directory instead of stdout")
	cmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Scenarios to run in parallel (overrides config)")
	cmd.Flags().StringSliceVar(&runScenarioNames, "scenario", nil, "Only run scenarios with these names")
	cmd.Flags().StringSliceVar(&runTags, "tag", nil, "Only run scenarios carrying one of these tags")
}

func runOverrides(cmd *cobra.Command) common.FlagOverrides {
	overrides := common.FlagOverrides{
		BaseURL:     runBaseURL,
		TimeoutMS:   runTimeoutMS,
		Report:      runReport,
		Out:         runOut,
		Concurrency: runConcurrency,
	}
	if cmd.Flags().Changed("headless") {
		headless := runHeadless
		overrides.Headless = &headless
	}
	return overrides
}

func runRun(cmd *cobra.Command, args []string) error {
	application, err := newApp(runOverrides(cmd))
	if err != nil {
		return &exitError{code: exitErrored, err: err}
	}
	defer application.Close()

	scenarios, err := application.LoadScenarios(args[0], runScenarioNames, runTags)
	if err != nil {
		application.Logger.Error().Err(err).Str("path", args[0]).Msg("Failed to load scenarios")
		return &exitError{code: exitErrored, err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := application.RunOnce(ctx, scenarios)
	if summary.ExitCode != exitPassed {
		return &exitError{code: summary.ExitCode}
	}
	return nil
}
