package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loomery/loom/internal/config"
	"github.com/loomery/loom/pkg/models"
)

var agentsRosterPath string

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show the configured agent roster",
	Long: `List the agents the pipeline will route to, with their capability
tags and starting temperatures. Reads the roster from --roster, the
configured roster_path, or the built-in default roster.`,
	RunE: runAgents,
}

func init() {
	agentsCmd.Flags().StringVar(&agentsRosterPath, "roster", "", "Path to the agents roster YAML")
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rosterPath := agentsRosterPath
	if rosterPath == "" {
		rosterPath = cfg.Pipeline.RosterPath
	}

	var profiles []*models.AgentProfile
	source := "built-in default"
	if rosterPath != "" {
		profiles, err = config.LoadRoster(rosterPath)
		if err != nil {
			return err
		}
		source = rosterPath
	} else {
		profiles = config.DefaultRoster()
	}

	color.New(color.Bold).Printf("Roster (%s)\n", source)
	fmt.Printf("  %-16s %-32s %6s\n", "ID", "CAPABILITIES", "TEMP")
	for _, p := range profiles {
		caps := "any"
		if len(p.Capabilities) > 0 {
			tags := make([]string, len(p.Capabilities))
			for i, c := range p.Capabilities {
				tags[i] = string(c)
			}
			caps = strings.Join(tags, ", ")
		}
		temp := p.Temperature
		if temp == 0 {
			temp = models.MaxTemperature
		}
		fmt.Printf("  %-16s %-32s %6.2f\n", p.ID, caps, temp)
	}
	return nil
}
