package main

import (
	"testing"

	"github.com/loomery/loom/internal/agent"
	"github.com/loomery/loom/pkg/models"
)

func TestApplyRoster_PreservesLearnedState(t *testing.T) {
	registry := agent.NewRegistry()
	registry.Register(&models.AgentProfile{
		ID:           "coder",
		Capabilities: []models.SubtaskType{models.SubtaskTypeCode},
		Temperature:  0.4,
	})
	registry.Update("coder", func(p *models.AgentProfile) {
		p.EMASuccess = 0.92
		p.Observations = 17
	})

	applyRoster(registry, []*models.AgentProfile{
		{ID: "coder", Capabilities: []models.SubtaskType{models.SubtaskTypeCode, models.SubtaskTypeAnalyze}},
		{ID: "writer", Capabilities: []models.SubtaskType{models.SubtaskTypeWrite}},
	})

	coder := registry.Get("coder")
	if coder.EMASuccess != 0.92 || coder.Observations != 17 {
		t.Errorf("coder = ema %v obs %d, reload must not reset learned state",
			coder.EMASuccess, coder.Observations)
	}
	if len(coder.Capabilities) != 2 {
		t.Errorf("coder capabilities = %v, want the reloaded 2 tags", coder.Capabilities)
	}
	if coder.Temperature != 0.4 {
		t.Errorf("coder temperature = %v, reload must not reset it", coder.Temperature)
	}

	if registry.Get("writer") == nil {
		t.Error("new roster agent was not registered")
	}
}
