// Package workflow implements the execution engine for multi-step
// security assessments: an ordered sequence of tool invocations with
// retry, timeout, conditional skipping, cleanup, audit logging, and
// pause/cancel control.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Rick1330/cybersage/internal/audit"
	"github.com/Rick1330/cybersage/internal/contextstore"
	"github.com/Rick1330/cybersage/internal/types"
)

// Status represents the lifecycle state of a workflow.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

// String returns the string representation of the workflow status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the workflow can make no further progress.
// Paused is not terminal: it must transition back to Running or to
// Cancelled.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Workflow owns an ordered sequence of steps and drives them to
// completion strictly one at a time. Cancel, Pause, and Resume may be
// called from goroutines other than the one driving Start; all shared
// state is guarded by the workflow mutex.
type Workflow struct {
	ID            types.ID
	Name          string
	Description   string
	SecurityLevel types.SecurityLevel

	steps       []*Step
	contextType types.ContextType
	vars        map[string]any

	mu          sync.Mutex
	status      Status
	currentStep int
	results     map[string]map[string]any
	startTime   time.Time
	endTime     time.Time
	resumeCh    chan struct{} // non-nil only while paused
	cancelCh    chan struct{}

	store  contextstore.Store
	sink   audit.Sink
	logger *slog.Logger
	tracer trace.Tracer
	exec   *stepExecutor
}

// Option is a functional option for configuring a Workflow.
type Option func(*Workflow)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithTracer sets the OpenTelemetry tracer used for execution spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(w *Workflow) {
		if tracer != nil {
			w.tracer = tracer
		}
	}
}

// WithSecurityLevel sets the workflow's security classification.
// Default: SecurityLevelMedium.
func WithSecurityLevel(level types.SecurityLevel) Option {
	return func(w *Workflow) {
		w.SecurityLevel = level
	}
}

// WithContextType sets the context classification passed to the context
// store. Default: ContextTypeSecurityScan.
func WithContextType(t types.ContextType) Option {
	return func(w *Workflow) {
		w.contextType = t
	}
}

// WithContextStore sets the per-workflow state store. Default: a fresh
// in-memory store.
func WithContextStore(store contextstore.Store) Option {
	return func(w *Workflow) {
		if store != nil {
			w.store = store
		}
	}
}

// WithAuditSink sets the audit sink. Default: audit.NopSink.
func WithAuditSink(sink audit.Sink) Option {
	return func(w *Workflow) {
		if sink != nil {
			w.sink = sink
		}
	}
}

// WithVars sets extra variables visible to expression conditions.
func WithVars(vars map[string]any) Option {
	return func(w *Workflow) {
		w.vars = vars
	}
}

// WithBackoff overrides the inter-attempt delay schedule. Used by tests
// to avoid real multi-second sleeps.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(w *Workflow) {
		if fn != nil {
			w.exec.backoff = fn
		}
	}
}

// New creates a pending workflow over the given steps. The step sequence
// is fixed after construction.
func New(name, description string, steps []*Step, opts ...Option) *Workflow {
	w := &Workflow{
		ID:            types.NewID(),
		Name:          name,
		Description:   description,
		SecurityLevel: types.SecurityLevelMedium,
		steps:         steps,
		contextType:   types.ContextTypeSecurityScan,
		status:        StatusPending,
		results:       make(map[string]map[string]any),
		cancelCh:      make(chan struct{}),
		store:         contextstore.NewMemoryStore(),
		sink:          audit.NopSink{},
		logger:        slog.Default(),
		tracer:        otel.Tracer("cybersage/workflow"),
	}
	w.exec = &stepExecutor{
		workflowID: w.ID,
		backoff:    defaultBackoff,
		cancelCh:   w.cancelCh,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.exec.sink = w.sink
	w.exec.logger = w.logger
	w.exec.tracer = w.tracer
	return w
}

// Start drives the step sequence to completion and returns the aggregated
// results. It blocks until the workflow reaches a terminal state and may
// only be called once, on a pending workflow. Steps execute strictly in
// order; the first unrecovered failure halts the run.
func (w *Workflow) Start(ctx context.Context) (map[string]map[string]any, error) {
	w.mu.Lock()
	if w.status != StatusPending {
		current := w.status
		w.mu.Unlock()
		return nil, types.NewError(types.WORKFLOW_INVALID_STATE,
			fmt.Sprintf("cannot start workflow in state %s", current))
	}
	w.status = StatusRunning
	w.startTime = time.Now().UTC()
	w.mu.Unlock()

	ctx, span := w.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.id", w.ID.String()),
		attribute.String("workflow.name", w.Name),
		attribute.String("workflow.security_level", string(w.SecurityLevel)),
		attribute.Int("workflow.total_steps", len(w.steps)),
	))
	defer span.End()

	if _, err := w.store.CreateContext(ctx, w.ID, w.contextType, w.SecurityLevel); err != nil {
		return nil, w.failWorkflow(ctx, 0,
			types.WrapError(types.WORKFLOW_FAILED, "failed to create workflow context", err))
	}

	w.logAudit(ctx, audit.EventWorkflowStarted, map[string]any{
		"name":        w.Name,
		"total_steps": len(w.steps),
	})
	w.logger.InfoContext(ctx, "workflow started",
		"workflow_id", w.ID,
		"name", w.Name,
		"total_steps", len(w.steps),
	)

	for i, step := range w.steps {
		w.mu.Lock()
		w.currentStep = i
		w.mu.Unlock()

		// Pause/cancel gate between steps: a paused workflow parks here
		// until Resume or Cancel, so resumption continues from the
		// current step without re-running earlier ones.
		if err := w.gate(ctx); err != nil {
			return nil, w.abort(ctx, i, err)
		}

		skip, err := w.shouldSkip(step)
		if err != nil {
			step.markFailed(err.Error())
			return nil, w.failWorkflow(ctx, i, err)
		}
		if skip {
			step.markSkipped()
			w.logger.DebugContext(ctx, "step skipped",
				"workflow_id", w.ID,
				"step", step.Name,
			)
			continue
		}

		result, err := w.exec.runStep(ctx, step)
		if err != nil {
			if errors.Is(err, errCancelled) {
				return nil, w.abort(ctx, i, err)
			}
			w.runCleanup(ctx, step)
			return nil, w.failWorkflow(ctx, i, err)
		}

		w.mu.Lock()
		w.results[step.Name] = result
		w.mu.Unlock()

		if err := w.store.UpdateContext(ctx, w.ID, map[string]any{
			fmt.Sprintf("step_%d", i): result,
		}); err != nil {
			return nil, w.failWorkflow(ctx, i,
				types.WrapError(types.WORKFLOW_FAILED, "failed to update workflow context", err))
		}
	}

	// Final gate: a pause landing after the last step parks here instead
	// of completing while paused.
	if err := w.gate(ctx); err != nil {
		last := len(w.steps) - 1
		if last < 0 {
			last = 0
		}
		return nil, w.abort(ctx, last, err)
	}

	w.mu.Lock()
	if w.status.IsTerminal() {
		// Cancel won the race after the last step finished.
		w.mu.Unlock()
		return nil, types.NewError(types.WORKFLOW_CANCELLED, "workflow cancelled by user")
	}
	w.status = StatusCompleted
	w.endTime = time.Now().UTC()
	duration := w.endTime.Sub(w.startTime)
	completed := 0
	for _, step := range w.steps {
		if step.Status() == StepCompleted {
			completed++
		}
	}
	w.mu.Unlock()

	w.logAudit(ctx, audit.EventWorkflowCompleted, map[string]any{
		"duration_seconds": duration.Seconds(),
		"steps_completed":  completed,
	})
	w.logger.InfoContext(ctx, "workflow completed",
		"workflow_id", w.ID,
		"duration", duration,
		"steps_completed", completed,
	)

	return w.Results(), nil
}

// Cancel moves a Running or Paused workflow to Cancelled. If the current
// step is mid-execution it is marked Failed with "Cancelled by user" and
// its cleanup runs once. Cancellation is cooperative: the in-flight tool
// call is abandoned at the executor boundary, not preempted. Cancelling a
// pending or terminal workflow is a no-op.
func (w *Workflow) Cancel(ctx context.Context) error {
	w.mu.Lock()
	if w.status != StatusRunning && w.status != StatusPaused {
		w.mu.Unlock()
		return nil
	}
	w.status = StatusCancelled
	w.endTime = time.Now().UTC()
	idx := w.currentStep
	close(w.cancelCh)
	var current *Step
	if idx < len(w.steps) {
		current = w.steps[idx]
	}
	w.mu.Unlock()

	if current != nil && current.Status() == StepRunning {
		if current.markFailed("Cancelled by user") {
			w.runCleanup(ctx, current)
		}
	}

	w.logAudit(ctx, audit.EventWorkflowCancelled, map[string]any{
		"step_index": idx,
	})
	w.logger.InfoContext(ctx, "workflow cancelled",
		"workflow_id", w.ID,
		"step_index", idx,
	)
	return nil
}

// Pause suspends execution at the next step boundary. The in-flight step,
// if any, runs to completion first; step state and the current index are
// untouched.
func (w *Workflow) Pause(ctx context.Context) error {
	w.mu.Lock()
	if w.status != StatusRunning {
		current := w.status
		w.mu.Unlock()
		return types.NewError(types.WORKFLOW_INVALID_STATE,
			fmt.Sprintf("cannot pause workflow in state %s", current))
	}
	w.status = StatusPaused
	w.resumeCh = make(chan struct{})
	idx := w.currentStep
	w.mu.Unlock()

	w.logAudit(ctx, audit.EventWorkflowPaused, map[string]any{
		"step_index": idx,
	})
	w.logger.InfoContext(ctx, "workflow paused",
		"workflow_id", w.ID,
		"step_index", idx,
	)
	return nil
}

// Resume continues a paused workflow from the current step. Steps already
// completed or skipped are not re-executed or re-audited.
func (w *Workflow) Resume(ctx context.Context) error {
	w.mu.Lock()
	if w.status != StatusPaused {
		current := w.status
		w.mu.Unlock()
		return types.NewError(types.WORKFLOW_INVALID_STATE,
			fmt.Sprintf("cannot resume workflow in state %s", current))
	}
	w.status = StatusRunning
	close(w.resumeCh)
	w.resumeCh = nil
	idx := w.currentStep
	w.mu.Unlock()

	w.logAudit(ctx, audit.EventWorkflowResumed, map[string]any{
		"step_index": idx,
	})
	w.logger.InfoContext(ctx, "workflow resumed",
		"workflow_id", w.ID,
		"step_index", idx,
	)
	return nil
}

// Status returns the current lifecycle state.
func (w *Workflow) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Results returns a deep copy of the aggregated results: one entry per
// completed step, keyed by step name.
func (w *Workflow) Results() map[string]map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]map[string]any, len(w.results))
	for name, result := range w.results {
		cp := make(map[string]any, len(result))
		for k, v := range result {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}

// Steps returns the workflow's step sequence. The slice is fixed after
// construction; callers must not mutate it.
func (w *Workflow) Steps() []*Step {
	return w.steps
}

// gate blocks while the workflow is paused and reports cancellation.
// Returns nil when the workflow is clear to run the next step.
func (w *Workflow) gate(ctx context.Context) error {
	for {
		w.mu.Lock()
		switch w.status {
		case StatusRunning:
			w.mu.Unlock()
			return nil
		case StatusPaused:
			resume := w.resumeCh
			w.mu.Unlock()
			select {
			case <-resume:
			case <-w.cancelCh:
				return errCancelled
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			w.mu.Unlock()
			return errCancelled
		}
	}
}

// shouldSkip evaluates the step's gating conditions against the current
// environment. A false from any condition skips the step; an evaluation
// error fails the workflow without consuming a retry attempt.
func (w *Workflow) shouldSkip(step *Step) (bool, error) {
	if len(step.Conditions) == 0 {
		return false, nil
	}

	env := &Env{
		Params:  step.Params,
		Results: w.Results(),
		Vars:    w.vars,
	}
	for _, cond := range step.Conditions {
		ok, err := cond.Evaluate(env)
		if err != nil {
			return false, types.WrapError(types.CONDITION_FAILED,
				fmt.Sprintf("condition evaluation failed for step %q", step.Name), err)
		}
		if !ok {
			return true, nil
		}
	}
	return false, nil
}

// abort translates an internal cancellation signal into the caller-facing
// error; caller context expiry is treated as a workflow failure.
func (w *Workflow) abort(ctx context.Context, stepIndex int, cause error) error {
	if errors.Is(cause, errCancelled) {
		return types.NewError(types.WORKFLOW_CANCELLED, "workflow cancelled by user")
	}
	return w.failWorkflow(ctx, stepIndex,
		types.WrapError(types.WORKFLOW_FAILED, "workflow context cancelled", cause))
}

// failWorkflow transitions to Failed, emits workflow_failed, and returns
// the cause unchanged for the caller. No-op on the status if the workflow
// already reached a terminal state.
func (w *Workflow) failWorkflow(ctx context.Context, stepIndex int, cause error) error {
	w.mu.Lock()
	if w.status.IsTerminal() {
		w.mu.Unlock()
		return cause
	}
	w.status = StatusFailed
	w.endTime = time.Now().UTC()
	w.mu.Unlock()

	w.logAudit(ctx, audit.EventWorkflowFailed, map[string]any{
		"step_index": stepIndex,
		"error":      cause.Error(),
	})
	w.logger.ErrorContext(ctx, "workflow failed",
		"workflow_id", w.ID,
		"step_index", stepIndex,
		"error", cause,
	)
	return cause
}

// runCleanup invokes the step's cleanup hook best-effort. A cleanup error
// is logged and never escalated or allowed to mask the original failure.
func (w *Workflow) runCleanup(ctx context.Context, step *Step) {
	if step.Cleanup == nil {
		return
	}
	if err := step.Cleanup(ctx); err != nil {
		w.logger.ErrorContext(ctx, "step cleanup failed",
			"workflow_id", w.ID,
			"step", step.Name,
			"error", err,
		)
	}
}

// logAudit records a workflow-level event; sink failures are logged
// locally and never change execution outcome.
func (w *Workflow) logAudit(ctx context.Context, event audit.EventType, details map[string]any) {
	if _, err := w.sink.LogEvent(ctx, w.ID, event, details); err != nil {
		w.logger.WarnContext(ctx, "audit event failed",
			"workflow_id", w.ID,
			"event", event.String(),
			"error", err,
		)
	}
}
