package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var selectorsCmd = &cobra.Command{
	Use:   "selectors",
	Short: "Inspect and reset the selector registry used for drift detection",
}

var (
	selectorsScenario string
	selectorsJSON     bool
)

var selectorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List selectors that matched in passing runs",
	RunE:  runSelectorsList,
}

var selectorsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget recorded selectors, for one scenario or all",
	Long:  `Clears the registry after an intentional UI change so renamed selectors stop reporting drift.`,
	RunE:  runSelectorsReset,
}

func init() {
	selectorsCmd.PersistentFlags().StringVar(&selectorsScenario, "scenario", "", "Limit to one scenario")
	selectorsListCmd.Flags().BoolVar(&selectorsJSON, "json", false, "Output as JSON")

	selectorsCmd.AddCommand(selectorsListCmd)
	selectorsCmd.AddCommand(selectorsResetCmd)
}

func runSelectorsList(cmd *cobra.Command, args []string) error {
	storage, _, err := openStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	records, err := storage.SelectorRegistry().List(cmd.Context(), selectorsScenario)
	if err != nil {
		return fmt.Errorf("failed to list selectors: %w", err)
	}

	if selectorsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	if len(records) == 0 {
		fmt.Println("No selectors recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SCENARIO\tSELECTOR\tPASSES\tLAST SEEN\n")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Scenario, r.Selector, r.Passes, r.LastSeen.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runSelectorsReset(cmd *cobra.Command, args []string) error {
	storage, logger, err := openStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	if err := storage.SelectorRegistry().Reset(cmd.Context(), selectorsScenario); err != nil {
		return fmt.Errorf("failed to reset selectors: %w", err)
	}
	logger.Info().Str("scenario", selectorsScenario).Msg("Selector registry reset")

	if selectorsScenario == "" {
		fmt.Println("Selector registry cleared.")
	} else {
		fmt.Printf("Selectors for %q cleared.\n", selectorsScenario)
	}
	return nil
}
