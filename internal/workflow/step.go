package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/Rick1330/cybersage/internal/tool"
)

// StepStatus represents the execution status of a single workflow step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// String returns the string representation of the step status.
func (s StepStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the step can make no further progress.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}

// Step execution policy defaults.
const (
	DefaultRetryCount  = 3
	DefaultStepTimeout = 5 * time.Minute
)

// CleanupFunc is a best-effort hook invoked when a step fails or the
// workflow is cancelled mid-step. Errors from cleanup are logged and
// never escalated.
type CleanupFunc func(ctx context.Context) error

// Step is one tool invocation plus its execution policy: retries,
// per-attempt timeout, gating conditions, and an optional cleanup hook.
// Policy fields are fixed at construction; run state is mutated only by
// the owning Workflow's executor and by Cancel.
type Step struct {
	Name       string
	Tool       tool.Tool
	Params     map[string]any
	Conditions []Condition
	RetryCount int
	Timeout    time.Duration
	Cleanup    CleanupFunc

	mu        sync.Mutex
	status    StepStatus
	result    map[string]any
	errMsg    string
	startTime time.Time
	endTime   time.Time
}

// StepOption is a functional option for configuring a Step.
type StepOption func(*Step)

// WithConditions sets the gating conditions. All must evaluate true for
// the step to execute; otherwise the step is skipped.
func WithConditions(conds ...Condition) StepOption {
	return func(s *Step) {
		s.Conditions = conds
	}
}

// WithRetryCount sets the total attempt budget (minimum 1).
func WithRetryCount(n int) StepOption {
	return func(s *Step) {
		if n >= 1 {
			s.RetryCount = n
		}
	}
}

// WithStepTimeout sets the per-attempt timeout.
func WithStepTimeout(d time.Duration) StepOption {
	return func(s *Step) {
		if d > 0 {
			s.Timeout = d
		}
	}
}

// WithCleanup sets the best-effort cleanup hook.
func WithCleanup(fn CleanupFunc) StepOption {
	return func(s *Step) {
		s.Cleanup = fn
	}
}

// NewStep creates a pending step for the given tool. Params are copied so
// later mutation by the caller cannot change what the tool receives.
func NewStep(name string, t tool.Tool, params map[string]any, opts ...StepOption) *Step {
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}

	s := &Step{
		Name:       name,
		Tool:       t,
		Params:     copied,
		RetryCount: DefaultRetryCount,
		Timeout:    DefaultStepTimeout,
		status:     StepPending,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current step status.
func (s *Step) Status() StepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Result returns the step result, nil unless the step completed.
func (s *Step) Result() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Err returns the failure message, empty unless the step failed.
func (s *Step) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// StartedAt returns when execution began, zero if never started.
func (s *Step) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// CompletedAt returns when the step reached a terminal execution state,
// zero while pending or running.
func (s *Step) CompletedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime
}

// Duration returns wall-clock execution time, zero until the step ends.
func (s *Step) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() || s.endTime.IsZero() {
		return 0
	}
	return s.endTime.Sub(s.startTime)
}

// markRunning transitions Pending -> Running. Returns false if the step
// already left Pending (cancelled before its first attempt).
func (s *Step) markRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StepPending {
		return false
	}
	s.status = StepRunning
	s.startTime = time.Now().UTC()
	return true
}

// markCompleted records a successful result. Returns false if the step is
// already terminal (a concurrent cancel won the race).
func (s *Step) markCompleted(result map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return false
	}
	s.status = StepCompleted
	s.result = result
	s.endTime = time.Now().UTC()
	return true
}

// markFailed records a failure message. Returns false if the step is
// already terminal.
func (s *Step) markFailed(msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return false
	}
	s.status = StepFailed
	s.errMsg = msg
	s.endTime = time.Now().UTC()
	return true
}

// markSkipped transitions Pending -> Skipped. Skipping is only valid
// before any execution attempt.
func (s *Step) markSkipped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StepPending {
		return false
	}
	s.status = StepSkipped
	return true
}
