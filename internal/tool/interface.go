package tool

import (
	"context"

	"github.com/Rick1330/cybersage/internal/types"
)

// Tool represents an atomic, stateless operation that can be invoked by a
// workflow step. Tools are the fundamental external capability of the
// engine: network scanners, lookup services, intelligence queries. A Tool
// instance must be safe for concurrent calls; the engine treats every
// invocation as stateless-per-call.
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Version returns the semantic version of this tool
	Version() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Tags returns a list of tags for categorization and discovery
	Tags() []string

	// Execute runs the tool with the given parameters and returns a
	// structured result. Context is used for cancellation and deadlines;
	// implementations that observe ctx get hard cancellation, others are
	// abandoned at the caller's boundary.
	Execute(ctx context.Context, params map[string]any) (map[string]any, error)

	// Health returns the current health status of this tool
	Health(ctx context.Context) types.HealthStatus
}
