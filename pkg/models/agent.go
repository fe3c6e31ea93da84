package models

import "time"

// Temperature bounds for agent sampling. The learner clamps all
// adaptations into this range.
const (
	// MinTemperature is the floor for agent sampling temperature.
	MinTemperature = 0.1
	// MaxTemperature is the ceiling for agent sampling temperature.
	MaxTemperature = 1.0
)

// AgentProfile describes a logical worker with a capability profile and an
// adjustable sampling temperature. Profiles are long-lived and mutated only
// by the learner.
type AgentProfile struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Capabilities lists the subtask types this agent can execute.
	Capabilities []SubtaskType `json:"capabilities"`
	// Temperature is the current sampling temperature used for this
	// agent's generate calls.
	Temperature float64 `json:"temperature"`
	// EMASuccess is the exponential-moving-average success rate.
	EMASuccess float64 `json:"ema_success"`
	// EMALatency is the exponential-moving-average execution latency.
	EMALatency time.Duration `json:"ema_latency"`
	// Observations is the number of outcomes recorded for this agent.
	Observations int64 `json:"observations"`
	// UpdatedAt is when the learner last touched this profile.
	UpdatedAt time.Time `json:"updated_at"`
}

// CanHandle returns true if the agent's capability tags include the given
// subtask type. An agent with no tags is treated as general-purpose.
func (a *AgentProfile) CanHandle(t SubtaskType) bool {
	if len(a.Capabilities) == 0 {
		return true
	}
	for _, c := range a.Capabilities {
		if c == t {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the profile. Readers outside the learner
// work on copies so profile mutation stays single-writer.
func (a *AgentProfile) Clone() *AgentProfile {
	cp := *a
	cp.Capabilities = append([]SubtaskType(nil), a.Capabilities...)
	return &cp
}
