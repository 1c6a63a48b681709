package hooks

import (
	"maps"
	"time"
)

// Lifecycle actions emitted by the engine and orchestrator.
const (
	ActionWorkflowRegistered         = "workflow_registered"
	ActionWorkflowExecutionStarted   = "workflow_execution_started"
	ActionWorkflowExecutionCompleted = "workflow_execution_completed"
	ActionWorkflowExecutionFailed    = "workflow_execution_failed"
	ActionWorkflowExecutionCancelled = "workflow_execution_cancelled"
	ActionNodeStarted                = "node_started"
	ActionNodeCompleted              = "node_completed"
	ActionNodeFailed                 = "node_failed"
	ActionNodeSkipped                = "node_skipped"
	ActionNodeCancelled              = "node_cancelled"

	// ActionAll subscribes a handler to every action.
	ActionAll = "*"
)

// Event is one lifecycle notification.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewEvent stamps an event with the current time. details is copied.
func NewEvent(action string, details map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Details:   maps.Clone(details),
	}
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(e).
func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard is an Emitter that drops everything.
var Discard Emitter = EmitterFunc(func(Event) {})
