// Package main provides the entry point for the treewatch CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/branchbound/treewatch/cmd/treewatch/commands"
	"github.com/branchbound/treewatch/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "treewatch",
		Short: "Treewatch - restart controller with online tree size estimation",
		Long: `Treewatch observes branch-and-bound node events, estimates the final
search tree size from progress time series, and decides when restarting the
search is worthwhile.

Commands:
  simulate  Run the controller against a synthetic branch-and-bound search
  predict   Evaluate a regression forest on a feature vector`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewSimulateCommand(&verbose, &quiet))
	rootCmd.AddCommand(commands.NewPredictCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "treewatch %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
