package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loomery/loom/internal/config"
	"github.com/loomery/loom/internal/learning"
	"github.com/loomery/loom/internal/router"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learned agent profiles and routing beliefs",
	Long: `Display the persisted per-agent state: temperature, success EMA,
latency EMA and observation count, plus the per-(task type, agent)
success/failure counters that drive routing.`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	storePath := cfg.Pipeline.ProfileDB
	if storePath == "" {
		storePath = learning.DefaultStorePath()
	}
	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		fmt.Println("No learned profiles yet. Run 'loom run <request>' first.")
		return nil
	}

	store, err := learning.OpenStore(storePath)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer store.Close()

	profiles, beliefs, err := store.LoadProfiles()
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	if len(profiles) == 0 {
		fmt.Println("No learned profiles yet. Run 'loom run <request>' first.")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Println("Agents")
	fmt.Printf("  %-16s %11s %11s %12s %6s\n", "ID", "TEMP", "EMA SUCC", "EMA LATENCY", "OBS")
	for _, p := range profiles {
		fmt.Printf("  %-16s %11.2f %11.3f %12s %6d\n",
			p.ID, p.Temperature, p.EMASuccess, p.EMALatency.String(), p.Observations)
	}

	if len(beliefs) > 0 {
		keys := make([]router.Key, 0, len(beliefs))
		for k := range beliefs {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].TaskType != keys[j].TaskType {
				return keys[i].TaskType < keys[j].TaskType
			}
			return keys[i].AgentID < keys[j].AgentID
		})

		fmt.Println()
		bold.Println("Routing beliefs")
		fmt.Printf("  %-10s %-16s %9s %9s\n", "TYPE", "AGENT", "SUCCESSES", "FAILURES")
		for _, k := range keys {
			c := beliefs[k]
			fmt.Printf("  %-10s %-16s %9d %9d\n", k.TaskType, k.AgentID, c[0], c[1])
		}
	}
	return nil
}
