package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Rick1330/cybersage/internal/types"
)

// Registry manages tool registration, discovery, and execution.
// It provides a centralized, thread-safe registry with built-in metrics
// tracking and health monitoring.
type Registry interface {
	// Register adds a tool to the registry
	Register(tool Tool) error

	// Unregister removes a tool from the registry by name
	Unregister(name string) error

	// Get retrieves a tool by name, returning an error if not found
	Get(name string) (Tool, error)

	// List returns descriptors for all registered tools
	List() []Descriptor

	// ListByTag returns descriptors for tools matching the given tag
	ListByTag(tag string) []Descriptor

	// Execute runs a tool by name with the given input, recording metrics
	Execute(ctx context.Context, name string, params map[string]any) (map[string]any, error)

	// Health returns the overall health status of the registry
	Health(ctx context.Context) types.HealthStatus

	// Metrics returns execution metrics for a specific tool
	Metrics(name string) (Metrics, error)
}

// DefaultRegistry implements Registry with thread-safe operations.
type DefaultRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	metrics map[string]*Metrics
}

// NewRegistry creates a new DefaultRegistry instance
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		tools:   make(map[string]Tool),
		metrics: make(map[string]*Metrics),
	}
}

// Register adds a tool to the registry.
// Returns ErrToolAlreadyExists if a tool with the same name is registered.
func (r *DefaultRegistry) Register(tool Tool) error {
	if tool == nil {
		return types.NewError(ErrToolInvalidInput, "tool cannot be nil")
	}

	name := tool.Name()
	if name == "" {
		return types.NewError(ErrToolInvalidInput, "tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return types.NewError(ErrToolAlreadyExists, fmt.Sprintf("tool %q already registered", name))
	}

	r.tools[name] = tool
	r.metrics[name] = NewMetrics()

	return nil
}

// Unregister removes a tool from the registry by name.
// Returns ErrToolNotFound if the tool doesn't exist.
func (r *DefaultRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return types.NewError(ErrToolNotFound, fmt.Sprintf("tool %q not found", name))
	}

	delete(r.tools, name)
	delete(r.metrics, name)

	return nil
}

// Get retrieves a tool by name.
// Returns ErrToolNotFound if the tool doesn't exist.
func (r *DefaultRegistry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tool, exists := r.tools[name]; exists {
		return tool, nil
	}

	return nil, types.NewError(ErrToolNotFound, fmt.Sprintf("tool %q not found", name))
}

// List returns descriptors for all registered tools.
func (r *DefaultRegistry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		descriptors = append(descriptors, NewDescriptor(tool))
	}

	return descriptors
}

// ListByTag returns descriptors for tools matching the given tag.
func (r *DefaultRegistry) ListByTag(tag string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var descriptors []Descriptor
	for _, tool := range r.tools {
		if containsTag(tool.Tags(), tag) {
			descriptors = append(descriptors, NewDescriptor(tool))
		}
	}

	return descriptors
}

// Execute runs a tool by name with the given input, recording metrics.
// Returns ErrToolNotFound if the tool doesn't exist.
func (r *DefaultRegistry) Execute(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	output, execErr := tool.Execute(ctx, params)
	duration := time.Since(start)

	r.mu.Lock()
	if metrics, exists := r.metrics[name]; exists {
		if execErr != nil {
			metrics.RecordFailure(duration)
		} else {
			metrics.RecordSuccess(duration)
		}
	}
	r.mu.Unlock()

	if execErr != nil {
		return nil, types.WrapError(ErrToolExecutionFailed, fmt.Sprintf("tool %q execution failed", name), execErr)
	}

	return output, nil
}

// Health returns the overall health status of the registry.
// The registry is healthy if all tools are healthy, degraded if some are
// unhealthy, and unhealthy if all tools are unhealthy or none registered.
func (r *DefaultRegistry) Health(ctx context.Context) types.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tools) == 0 {
		return types.Unhealthy("no tools registered")
	}

	healthyCount := 0
	for _, tool := range r.tools {
		if tool.Health(ctx).IsHealthy() {
			healthyCount++
		}
	}

	switch {
	case healthyCount == len(r.tools):
		return types.Healthy(fmt.Sprintf("all %d tools healthy", len(r.tools)))
	case healthyCount == 0:
		return types.Unhealthy(fmt.Sprintf("all %d tools unhealthy", len(r.tools)))
	default:
		return types.Degraded(fmt.Sprintf("%d/%d tools healthy", healthyCount, len(r.tools)))
	}
}

// Metrics returns execution metrics for a specific tool.
// Returns ErrToolNotFound if the tool doesn't exist.
func (r *DefaultRegistry) Metrics(name string) (Metrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metrics, exists := r.metrics[name]
	if !exists {
		return Metrics{}, types.NewError(ErrToolNotFound, fmt.Sprintf("tool %q not found", name))
	}

	// Return a copy to prevent external modification
	return *metrics, nil
}

// containsTag checks if a tag exists in a slice of tags
func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Ensure DefaultRegistry implements Registry at compile time.
var _ Registry = (*DefaultRegistry)(nil)
