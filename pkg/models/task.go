package models

import "time"

// SubtaskStatus represents the current state of a subtask.
type SubtaskStatus string

const (
	// SubtaskStatusPending indicates the subtask has not started.
	SubtaskStatusPending SubtaskStatus = "pending"
	// SubtaskStatusInProgress indicates the subtask is being worked on.
	SubtaskStatusInProgress SubtaskStatus = "in_progress"
	// SubtaskStatusBlocked indicates a predecessor failed and the subtask cannot run.
	SubtaskStatusBlocked SubtaskStatus = "blocked"
	// SubtaskStatusDone indicates the subtask completed successfully.
	SubtaskStatusDone SubtaskStatus = "done"
	// SubtaskStatusFailed indicates the subtask failed.
	SubtaskStatusFailed SubtaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s SubtaskStatus) Valid() bool {
	switch s {
	case SubtaskStatusPending, SubtaskStatusInProgress, SubtaskStatusBlocked,
		SubtaskStatusDone, SubtaskStatusFailed:
		return true
	default:
		return false
	}
}

// SubtaskType is the task-type tag used for routing. Belief state is keyed
// by (SubtaskType, agent ID).
type SubtaskType string

const (
	// SubtaskTypeResearch covers information gathering and summarization.
	SubtaskTypeResearch SubtaskType = "research"
	// SubtaskTypeCode covers code generation and modification.
	SubtaskTypeCode SubtaskType = "code"
	// SubtaskTypeWrite covers prose and documentation output.
	SubtaskTypeWrite SubtaskType = "write"
	// SubtaskTypeAnalyze covers evaluation and structured reasoning.
	SubtaskTypeAnalyze SubtaskType = "analyze"
	// SubtaskTypeGeneral is the fallback for untagged work.
	SubtaskTypeGeneral SubtaskType = "general"
)

// Valid returns true if the type is a known value.
func (t SubtaskType) Valid() bool {
	switch t {
	case SubtaskTypeResearch, SubtaskTypeCode, SubtaskTypeWrite,
		SubtaskTypeAnalyze, SubtaskTypeGeneral:
		return true
	default:
		return false
	}
}

// ParseSubtaskType normalizes a raw type tag, falling back to general.
func ParseSubtaskType(raw string) SubtaskType {
	t := SubtaskType(raw)
	if t.Valid() {
		return t
	}
	return SubtaskTypeGeneral
}

// Subtask is one unit of decomposed work derived from an end-user request.
// Immutable after creation except for the attached terminal outcome fields
// (Status, Error).
type Subtask struct {
	// ID is the unique identifier for this subtask.
	ID string `json:"id"`
	// ParentID is the ID of the originating request.
	ParentID string `json:"parent_id"`
	// Type is the task-type tag used for routing.
	Type SubtaskType `json:"type"`
	// Ordinal is the suggested execution position within the request.
	Ordinal int `json:"ordinal"`
	// DependsOn lists subtask IDs that must complete before this one.
	// Dependencies are inferred from ordering only.
	DependsOn []string `json:"depends_on,omitempty"`
	// Payload is the text handed to the executing agent.
	Payload string `json:"payload"`
	// Status is the current state of the subtask.
	Status SubtaskStatus `json:"status"`
	// Error contains the failure message if the subtask failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the subtask was created.
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is the terminal result of executing one subtask on one agent.
// Exactly one Outcome is recorded per subtask; it is consumed once by the
// learner and not retained.
type Outcome struct {
	// SubtaskID identifies the subtask this outcome terminates.
	SubtaskID string `json:"subtask_id"`
	// AgentID identifies the agent that executed the subtask.
	AgentID string `json:"agent_id"`
	// Success indicates whether execution produced a usable result.
	Success bool `json:"success"`
	// Latency is the wall-clock execution duration.
	Latency time.Duration `json:"latency"`
	// Quality is an optional quality score in [0,1]; nil when unscored.
	Quality *float64 `json:"quality,omitempty"`
}
