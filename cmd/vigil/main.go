// -----------------------------------------------------------------------
// vigil - browser-driven UI and integration verification harness
// -----------------------------------------------------------------------

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes: 0 all passed, 1 any failed, 2 any errored or the harness could not run
const (
	exitPassed  = 0
	exitFailed  = 1
	exitErrored = 2
)

// exitError carries a process exit code out of a command. A nil err means the
// reports already said everything and nothing more is printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

var (
	// Persistent flags
	configFiles []string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:           "vigil",
	Short:         "Browser-driven UI and integration verification harness",
	Long:          `Vigil drives a real browser through scenario files, asserts on the DOM, console and WebSocket traffic, and reports pass, fail or harness error per scenario.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(selectorsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	os.Exit(execute())
}

func execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitPassed
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(os.Stderr, "vigil: %v\n", exit.err)
		}
		return exit.code
	}

	// Usage, config and scenario load errors mean the run never happened
	fmt.Fprintf(os.Stderr, "vigil: %v\n", err)
	return exitErrored
}
