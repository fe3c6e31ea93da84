package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loomery/loom/pkg/models"
)

// AgentSpec describes one agent in the roster YAML.
type AgentSpec struct {
	// ID is the agent's stable identifier.
	ID string `yaml:"id"`
	// Capabilities lists the task types the agent handles. Empty means
	// general-purpose.
	Capabilities []string `yaml:"capabilities"`
	// Temperature is the starting sampling temperature. Zero uses the
	// maximum.
	Temperature float64 `yaml:"temperature"`
}

type rosterFile struct {
	Agents []AgentSpec `yaml:"agents"`
}

// LoadRoster reads an agents roster YAML and converts it to profiles.
// Capability tags must parse as known task types.
func LoadRoster(path string) ([]*models.AgentProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	return ParseRoster(data)
}

// ParseRoster converts roster YAML bytes to agent profiles.
func ParseRoster(data []byte) ([]*models.AgentProfile, error) {
	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(rf.Agents) == 0 {
		return nil, fmt.Errorf("roster defines no agents")
	}

	profiles := make([]*models.AgentProfile, 0, len(rf.Agents))
	seen := make(map[string]bool, len(rf.Agents))
	for i, spec := range rf.Agents {
		if spec.ID == "" {
			return nil, fmt.Errorf("roster agent %d has no id", i)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("roster agent %q appears twice", spec.ID)
		}
		seen[spec.ID] = true

		p := &models.AgentProfile{
			ID:          spec.ID,
			Temperature: spec.Temperature,
		}
		for _, tag := range spec.Capabilities {
			t := models.SubtaskType(tag)
			if !t.Valid() {
				return nil, fmt.Errorf("roster agent %q: unknown capability %q", spec.ID, tag)
			}
			p.Capabilities = append(p.Capabilities, t)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// DefaultRoster returns the built-in roster used when no roster file is
// configured: one specialist per task type plus a generalist.
func DefaultRoster() []*models.AgentProfile {
	return []*models.AgentProfile{
		{ID: "researcher", Capabilities: []models.SubtaskType{models.SubtaskTypeResearch}},
		{ID: "coder", Capabilities: []models.SubtaskType{models.SubtaskTypeCode, models.SubtaskTypeAnalyze}},
		{ID: "writer", Capabilities: []models.SubtaskType{models.SubtaskTypeWrite}},
		{ID: "generalist"},
	}
}
