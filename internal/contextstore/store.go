// Package contextstore holds per-workflow state blobs used for cross-step
// data sharing. Stores are keyed by workflow id and must be safe for
// concurrent use across workflow ids.
package contextstore

import (
	"context"
	"time"

	"github.com/Rick1330/cybersage/internal/types"
)

// DefaultTTL is the default time-to-live for a workflow context.
const DefaultTTL = time.Hour

// Context is the state blob attached to a single workflow execution.
type Context struct {
	WorkflowID    types.ID            `json:"workflow_id"`
	Type          types.ContextType   `json:"context_type"`
	SecurityLevel types.SecurityLevel `json:"security_level"`
	CreatedAt     time.Time           `json:"created_at"`
	LastUpdated   time.Time           `json:"last_updated"`
	Expiry        time.Time           `json:"expiry"`
	State         map[string]any      `json:"state"`
	Metadata      map[string]any      `json:"metadata,omitempty"`
}

// Store creates, reads, updates, and clears per-workflow contexts.
type Store interface {
	// CreateContext creates a fresh context for the workflow.
	// Fails if one already exists for the id.
	CreateContext(ctx context.Context, workflowID types.ID, contextType types.ContextType, level types.SecurityLevel) (*Context, error)

	// GetContext retrieves the context for a workflow. Expired contexts
	// are cleared and reported as CONTEXT_NOT_FOUND.
	GetContext(ctx context.Context, workflowID types.ID) (*Context, error)

	// UpdateContext merges the partial update into the context state and
	// extends its expiry.
	UpdateContext(ctx context.Context, workflowID types.ID, updates map[string]any) error

	// ClearContext removes the context for a workflow. Clearing a missing
	// context is not an error.
	ClearContext(ctx context.Context, workflowID types.ID) error
}

// newContext builds the initial context blob for a workflow.
func newContext(workflowID types.ID, contextType types.ContextType, level types.SecurityLevel, ttl time.Duration) *Context {
	now := time.Now().UTC()
	return &Context{
		WorkflowID:    workflowID,
		Type:          contextType,
		SecurityLevel: level,
		CreatedAt:     now,
		LastUpdated:   now,
		Expiry:        now.Add(ttl),
		State: map[string]any{
			"status":   "initialized",
			"phase":    "setup",
			"findings": []any{},
			"alerts":   []any{},
		},
		Metadata: map[string]any{},
	}
}
