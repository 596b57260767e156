package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <scenario-file|dir>",
	Short: "Re-run scenarios on a cron schedule until interrupted",
	Long: `Runs the scenarios immediately and then on every tick of the schedule, reporting each run.
A tick that arrives while a run is still in progress is skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var watchSchedule string

func init() {
	addRunFlags(watchCmd)
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", `Cron expression or descriptor such as "@every 5m" (overrides [watch] schedule)`)
}

func runWatch(cmd *cobra.Command, args []string) error {
	application, err := newApp(runOverrides(cmd))
	if err != nil {
		return &exitError{code: exitErrored, err: err}
	}
	defer application.Close()

	schedule := application.Config.Watch.Schedule
	if watchSchedule != "" {
		schedule = watchSchedule
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application.Logger.Info().
		Str("path", args[0]).
		Str("schedule", schedule).
		Msg("Watching scenarios - Press Ctrl+C to stop")

	if err := application.Watch(ctx, args[0], runScenarioNames, runTags, schedule); err != nil {
		return &exitError{code: exitErrored, err: err}
	}
	application.Logger.Info().Msg("Watch stopped")
	return nil
}
