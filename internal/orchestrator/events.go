// Package orchestrator wires the batcher, decomposer, router, workers and
// learner into a single request-processing pipeline.
package orchestrator

import (
	"time"

	"github.com/loomery/loom/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventRequestReceived indicates a request entered the pipeline.
	EventRequestReceived EventType = "request_received"
	// EventDecomposed indicates decomposition produced a subtask plan.
	EventDecomposed EventType = "decomposed"
	// EventSubtaskStarted indicates a subtask was dispatched to an agent.
	EventSubtaskStarted EventType = "subtask_started"
	// EventSubtaskCompleted indicates a subtask completed successfully.
	EventSubtaskCompleted EventType = "subtask_completed"
	// EventSubtaskFailed indicates a subtask failed.
	EventSubtaskFailed EventType = "subtask_failed"
	// EventSubtaskBlocked indicates a subtask was blocked by a failed dependency.
	EventSubtaskBlocked EventType = "subtask_blocked"
	// EventRequestDone indicates the whole request finished.
	EventRequestDone EventType = "request_done"
)

// Event represents an event emitted by the orchestrator. Subscribers read
// these from Events() to track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RequestID is the ID of the originating request.
	RequestID string
	// SubtaskID is the ID of the related subtask, if applicable.
	SubtaskID string
	// SubtaskType is the category of the related subtask, if applicable.
	SubtaskType models.SubtaskType
	// AgentID is the agent the subtask was routed to, if applicable.
	AgentID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
