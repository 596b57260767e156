package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/report"
)

var historyCmd = &cobra.Command{
	Use:   "history [result-id]",
	Short: "List stored scenario results, or show one in full",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var (
	historyScenario string
	historyLimit    int
	historyJSON     bool
)

func init() {
	historyCmd.Flags().StringVar(&historyScenario, "scenario", "", "Only results of this scenario")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum results to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	storage, logger, err := openStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	if len(args) == 1 {
		result, err := storage.ResultStorage().GetResult(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load result %s: %w", args[0], err)
		}
		format := "text"
		if historyJSON {
			format = "json"
		}
		sink := report.NewSink(logger, common.ReportConfig{Format: format, Destination: "stdout"})
		return sink.Write(result).Err
	}

	results, err := storage.ResultStorage().ListResults(cmd.Context(), historyScenario, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Println("No results stored.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSTARTED\tSTATUS\tSCENARIO\tDURATION\tERROR\n")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Status, r.Scenario,
			r.Duration.Round(time.Millisecond), r.ErrorKind)
	}
	return tw.Flush()
}
