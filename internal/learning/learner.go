// Package learning consumes execution outcomes and updates the router's
// belief state plus each agent's moving averages and sampling temperature.
package learning

import (
	"sync"
	"time"

	"github.com/loomery/loom/internal/agent"
	"github.com/loomery/loom/internal/router"
	"github.com/loomery/loom/pkg/models"
)

// Learning-rate and adaptation constants.
const (
	// alpha is the exponential-moving-average learning rate.
	alpha = 0.1
	// exploitEMA is the success-rate threshold above which temperature
	// is lowered (the agent is performing well; exploit it).
	exploitEMA = 0.9
	// exploreEMA is the success-rate threshold below which temperature
	// is raised (the agent is struggling; explore more).
	exploreEMA = 0.5
	// exploitFactor scales temperature down on exploit.
	exploitFactor = 0.95
	// exploreFactor scales temperature up on explore.
	exploreFactor = 1.05
	// auditMinDelta is the smallest temperature change that produces an
	// auditable update record; smaller changes apply silently.
	auditMinDelta = 0.01
	// maxAudits bounds the retained audit history.
	maxAudits = 256
)

// TemperatureUpdate is one auditable temperature adaptation.
type TemperatureUpdate struct {
	// AgentID identifies the adapted agent.
	AgentID string `json:"agent_id"`
	// Old is the temperature before adaptation.
	Old float64 `json:"old"`
	// New is the temperature after adaptation.
	New float64 `json:"new"`
	// Reason is "exploit" or "explore".
	Reason string `json:"reason"`
	// At is when the adaptation happened.
	At time.Time `json:"at"`
}

// Learner closes the loop: outcomes in, routing beliefs and agent
// temperatures out. It is the only writer of belief state and agent
// profiles.
type Learner struct {
	beliefs  *router.Store
	registry *agent.Registry

	mu     sync.Mutex
	audits []TemperatureUpdate

	debugLog func(format string, args ...interface{})
}

// New creates a Learner over the shared belief store and agent registry.
func New(beliefs *router.Store, registry *agent.Registry) *Learner {
	return &Learner{
		beliefs:  beliefs,
		registry: registry,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (l *Learner) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		l.debugLog = fn
	}
}

// Record consumes one terminal outcome. It increments the Beta counters
// feeding the next routing round, updates the agent's EMA success rate and
// latency, and adapts the agent's temperature.
func (l *Learner) Record(subtask *models.Subtask, agentID string, outcome *models.Outcome) {
	l.beliefs.Record(subtask.Type, agentID, outcome.Success)

	var update *TemperatureUpdate
	l.registry.Update(agentID, func(p *models.AgentProfile) {
		observed := 0.0
		if outcome.Success {
			observed = 1.0
		}
		p.EMASuccess = (1-alpha)*p.EMASuccess + alpha*observed

		if p.Observations == 0 {
			p.EMALatency = outcome.Latency
		} else {
			p.EMALatency = time.Duration((1-alpha)*float64(p.EMALatency) + alpha*float64(outcome.Latency))
		}
		p.Observations++

		update = adaptTemperature(p)
	})

	if update != nil {
		l.mu.Lock()
		l.audits = append(l.audits, *update)
		if len(l.audits) > maxAudits {
			l.audits = l.audits[len(l.audits)-maxAudits:]
		}
		l.mu.Unlock()
		l.debugLog("[learner] agent %s temperature %.3f -> %.3f (%s)",
			update.AgentID, update.Old, update.New, update.Reason)
	}
}

// adaptTemperature applies the exploit/explore rule in place and returns
// an audit record when the change crosses the minimum delta, nil otherwise.
func adaptTemperature(p *models.AgentProfile) *TemperatureUpdate {
	old := p.Temperature
	reason := ""

	switch {
	case p.EMASuccess > exploitEMA:
		p.Temperature = clamp(old * exploitFactor)
		reason = "exploit"
	case p.EMASuccess < exploreEMA:
		p.Temperature = clamp(old * exploreFactor)
		reason = "explore"
	default:
		return nil
	}

	delta := p.Temperature - old
	if delta < 0 {
		delta = -delta
	}
	if delta < auditMinDelta {
		return nil
	}

	return &TemperatureUpdate{
		AgentID: p.ID,
		Old:     old,
		New:     p.Temperature,
		Reason:  reason,
		At:      time.Now(),
	}
}

func clamp(t float64) float64 {
	if t < models.MinTemperature {
		return models.MinTemperature
	}
	if t > models.MaxTemperature {
		return models.MaxTemperature
	}
	return t
}

// Audits returns a copy of the retained temperature update records.
func (l *Learner) Audits() []TemperatureUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TemperatureUpdate(nil), l.audits...)
}
