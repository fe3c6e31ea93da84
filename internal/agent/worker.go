package agent

import (
	"context"
	"strings"
	"time"

	"github.com/loomery/loom/pkg/models"
)

// defaultMaxTokens bounds the output of one subtask execution.
const defaultMaxTokens = 4096

// Submitter is the slice of the batcher the worker needs.
type Submitter interface {
	Submit(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// Worker executes one subtask on one agent by issuing generate requests
// through the shared batcher at the agent's current temperature.
type Worker struct {
	submitter Submitter
	registry  *Registry
	maxTokens int
}

// NewWorker creates a Worker.
func NewWorker(submitter Submitter, registry *Registry) *Worker {
	return &Worker{
		submitter: submitter,
		registry:  registry,
		maxTokens: defaultMaxTokens,
	}
}

// Execute runs the subtask on the given agent and returns the output text
// plus the terminal outcome. The outcome is always populated, also on
// failure, so the learner observes every execution exactly once.
func (w *Worker) Execute(ctx context.Context, agentID string, subtask *models.Subtask) (string, *models.Outcome) {
	profile := w.registry.Get(agentID)
	temperature := models.MaxTemperature
	if profile != nil {
		temperature = profile.Temperature
	}

	start := time.Now()
	output, err := w.submitter.Submit(ctx, buildWorkerPrompt(subtask), w.maxTokens, temperature)
	latency := time.Since(start)

	outcome := &models.Outcome{
		SubtaskID: subtask.ID,
		AgentID:   agentID,
		Success:   err == nil && strings.TrimSpace(output) != "",
		Latency:   latency,
	}
	if err != nil {
		return "", outcome
	}
	return output, outcome
}
