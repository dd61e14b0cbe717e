// Package main provides the entry point for the hydraql CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hydraql/cmd/hydraql/commands"
	"github.com/Sumatoshi-tech/hydraql/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "hydraql",
		Short: "HydraQL - concurrent CodeQL scan orchestrator",
		Long: `HydraQL runs CodeQL queries and suites against per-language databases
in parallel and merges the results into one report.

Commands:
  scan      Resolve databases, run queries and merge the results`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewScanCommand())
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
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
