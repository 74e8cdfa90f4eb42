// Package audit records timestamped, structured lifecycle events for
// workflow executions. Sinks are fire-and-forget from the engine's
// perspective: a sink failure is logged by the caller and never changes
// execution outcome.
package audit

import (
	"context"
	"time"

	"github.com/Rick1330/cybersage/internal/types"
)

// EventType identifies the category and nature of an audit event.
type EventType string

// Workflow lifecycle events
const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventWorkflowCancelled EventType = "workflow_cancelled"
	EventWorkflowPaused    EventType = "workflow_paused"
	EventWorkflowResumed   EventType = "workflow_resumed"
)

// Step execution events
const (
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
)

// Context store events
const (
	EventContextCreated EventType = "context_created"
	EventContextUpdated EventType = "context_updated"
	EventContextCleared EventType = "context_cleared"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// Event is an immutable record of a single lifecycle transition.
type Event struct {
	ID         types.ID       `json:"id"`
	WorkflowID types.ID       `json:"workflow_id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	Details    map[string]any `json:"details,omitempty"`
}

// Sink records audit events. Implementations must be safe for concurrent
// use across workflow ids.
type Sink interface {
	// LogEvent records a single event and returns its generated id.
	LogEvent(ctx context.Context, workflowID types.ID, event EventType, details map[string]any) (types.ID, error)
}

// NopSink discards every event. Useful as a default and in tests.
type NopSink struct{}

// LogEvent implements Sink.
func (NopSink) LogEvent(ctx context.Context, workflowID types.ID, event EventType, details map[string]any) (types.ID, error) {
	return types.NewID(), nil
}

// Ensure NopSink implements Sink at compile time.
var _ Sink = NopSink{}
