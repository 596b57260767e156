package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vigil/internal/common"
)

var versionFull bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if versionFull {
			fmt.Printf("Vigil version %s\n", common.GetFullVersion())
			return
		}
		fmt.Printf("Vigil version %s\n", common.GetVersion())
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionFull, "full", false, "Include build and commit")
}
