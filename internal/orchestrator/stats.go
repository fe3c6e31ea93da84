package orchestrator

import (
	"time"

	"github.com/loomery/loom/internal/batcher"
	"github.com/loomery/loom/internal/decompose"
)

// AgentStats is a read-only snapshot of one agent's learned state.
type AgentStats struct {
	ID           string
	Temperature  float64
	EMASuccess   float64
	EMALatency   time.Duration
	Observations int64
}

// Stats aggregates pipeline counters for the stats command and diagnostics.
type Stats struct {
	// TotalRequests is the number of requests processed since start.
	TotalRequests uint64
	// Batcher carries throughput counters from the inference batcher.
	Batcher batcher.Stats
	// Decomposer carries truncation and fallback counters.
	Decomposer decompose.Stats
	// Agents lists per-agent learned state, ordered by agent ID.
	Agents []AgentStats
	// DroppedEvents counts events dropped due to a full event channel.
	DroppedEvents uint64
}

// GetStats returns a snapshot of current pipeline statistics.
func (o *Orchestrator) GetStats() Stats {
	s := Stats{
		TotalRequests: o.totalRequests.Load(),
		Batcher:       o.batcher.Stats(),
		Decomposer:    o.decomposer.Stats(),
		DroppedEvents: o.emitter.dropped(),
	}
	for _, p := range o.registry.All() {
		s.Agents = append(s.Agents, AgentStats{
			ID:           p.ID,
			Temperature:  p.Temperature,
			EMASuccess:   p.EMASuccess,
			EMALatency:   p.EMALatency,
			Observations: p.Observations,
		})
	}
	return s
}
