package tool

import (
	"time"
)

// Descriptor contains tool metadata for discovery and introspection.
// It provides all the information needed to understand what a tool does
// without requiring tool execution.
type Descriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags"`
}

// NewDescriptor creates a Descriptor from a Tool interface.
func NewDescriptor(t Tool) Descriptor {
	return Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		Version:     t.Version(),
		Tags:        t.Tags(),
	}
}

// Metrics tracks tool execution statistics for monitoring.
// Metrics are updated by the registry during execution; the registry's
// lock guards all mutation.
type Metrics struct {
	TotalCalls     int64         `json:"total_calls"`
	SuccessCalls   int64         `json:"success_calls"`
	FailedCalls    int64         `json:"failed_calls"`
	TotalDuration  time.Duration `json:"total_duration"`
	AvgDuration    time.Duration `json:"avg_duration"`
	LastExecutedAt *time.Time    `json:"last_executed_at,omitempty"`
}

// NewMetrics creates a new Metrics instance with zero values
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordSuccess records a successful tool execution with the given duration.
func (m *Metrics) RecordSuccess(duration time.Duration) {
	m.TotalCalls++
	m.SuccessCalls++
	m.TotalDuration += duration
	m.AvgDuration = m.TotalDuration / time.Duration(m.TotalCalls)
	now := time.Now()
	m.LastExecutedAt = &now
}

// RecordFailure records a failed tool execution with the given duration.
func (m *Metrics) RecordFailure(duration time.Duration) {
	m.TotalCalls++
	m.FailedCalls++
	m.TotalDuration += duration
	m.AvgDuration = m.TotalDuration / time.Duration(m.TotalCalls)
	now := time.Now()
	m.LastExecutedAt = &now
}

// SuccessRate returns the success rate as a float64 between 0.0 and 1.0.
// Returns 0.0 if no calls have been made.
func (m *Metrics) SuccessRate() float64 {
	if m.TotalCalls == 0 {
		return 0.0
	}
	return float64(m.SuccessCalls) / float64(m.TotalCalls)
}
