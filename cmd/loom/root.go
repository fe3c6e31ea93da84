package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Adaptive multi-agent task pipeline",
	Long: `Loom decomposes free-form requests into typed subtasks, routes each
subtask to the agent most likely to succeed, and learns from every outcome.

Core capabilities:
- Batches concurrent inference requests into single backend calls
- Decomposes requests into ordered, dependency-chained subtasks
- Routes subtasks via Thompson sampling over per-(type, agent) beliefs
- Adapts agent temperatures from success/failure streaks
- Persists learned profiles across sessions`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(versionCmd)
}
