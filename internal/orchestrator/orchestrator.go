// Package orchestrator owns the set of live workflows. It replaces
// ambient per-process registries with a single instance holding an
// explicit map from workflow id to workflow, so callers control exactly
// which workflows share which collaborators.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Rick1330/cybersage/internal/audit"
	"github.com/Rick1330/cybersage/internal/contextstore"
	"github.com/Rick1330/cybersage/internal/tool"
	"github.com/Rick1330/cybersage/internal/types"
	"github.com/Rick1330/cybersage/internal/workflow"
)

// Orchestrator creates, tracks, and controls workflows. All workflows it
// creates share its context store, audit sink, logger, and tracer.
// Safe for concurrent use.
type Orchestrator struct {
	registry tool.Registry
	store    contextstore.Store
	sink     audit.Sink
	logger   *slog.Logger
	tracer   trace.Tracer
	defaults workflow.StepDefaults

	mu        sync.RWMutex
	workflows map[types.ID]*workflow.Workflow

	wg sync.WaitGroup
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the OpenTelemetry tracer passed to workflows.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithContextStore sets the shared context store. Default: in-memory.
func WithContextStore(store contextstore.Store) Option {
	return func(o *Orchestrator) {
		if store != nil {
			o.store = store
		}
	}
}

// WithAuditSink sets the shared audit sink. Default: audit.NopSink.
func WithAuditSink(sink audit.Sink) Option {
	return func(o *Orchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithStepDefaults sets engine-level retry and timeout fallbacks applied
// to step definitions that do not set their own.
func WithStepDefaults(d workflow.StepDefaults) Option {
	return func(o *Orchestrator) {
		o.defaults = d
	}
}

// New creates an orchestrator resolving step tools from the given
// registry.
func New(registry tool.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		store:     contextstore.NewMemoryStore(),
		sink:      audit.NopSink{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("cybersage/orchestrator"),
		workflows: make(map[types.ID]*workflow.Workflow),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create builds a workflow from a definition, wires in the
// orchestrator's collaborators, and tracks it. Extra options override
// the defaults.
func (o *Orchestrator) Create(def *workflow.Definition, opts ...workflow.Option) (*workflow.Workflow, error) {
	wired := append([]workflow.Option{
		workflow.WithLogger(o.logger),
		workflow.WithTracer(o.tracer),
		workflow.WithContextStore(o.store),
		workflow.WithAuditSink(o.sink),
	}, opts...)

	w, err := def.BuildWithDefaults(o.registry, o.defaults, wired...)
	if err != nil {
		return nil, err
	}
	if err := o.Track(w); err != nil {
		return nil, err
	}
	return w, nil
}

// Track registers an already-built workflow with the orchestrator.
func (o *Orchestrator) Track(w *workflow.Workflow) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.workflows[w.ID]; exists {
		return types.NewError(types.WORKFLOW_EXISTS,
			fmt.Sprintf("workflow %s already tracked", w.ID))
	}
	o.workflows[w.ID] = w
	return nil
}

// Get returns the tracked workflow for an id.
func (o *Orchestrator) Get(id types.ID) (*workflow.Workflow, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	w, exists := o.workflows[id]
	if !exists {
		return nil, types.NewError(types.WORKFLOW_NOT_FOUND,
			fmt.Sprintf("workflow %s not found", id))
	}
	return w, nil
}

// Start runs a workflow to a terminal state and returns its aggregated
// results. Blocks for the duration of the run.
func (o *Orchestrator) Start(ctx context.Context, id types.ID) (map[string]map[string]any, error) {
	w, err := o.Get(id)
	if err != nil {
		return nil, err
	}
	return w.Start(ctx)
}

// StartAsync launches a workflow in its own goroutine. The run's outcome
// is observable via Status and Results; a failed run is also logged.
func (o *Orchestrator) StartAsync(ctx context.Context, id types.ID) error {
	w, err := o.Get(id)
	if err != nil {
		return err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := w.Start(ctx); err != nil {
			o.logger.ErrorContext(ctx, "workflow run failed",
				"workflow_id", w.ID,
				"name", w.Name,
				"error", err,
			)
		}
	}()
	return nil
}

// Cancel cancels a tracked workflow.
func (o *Orchestrator) Cancel(ctx context.Context, id types.ID) error {
	w, err := o.Get(id)
	if err != nil {
		return err
	}
	return w.Cancel(ctx)
}

// Pause pauses a tracked workflow.
func (o *Orchestrator) Pause(ctx context.Context, id types.ID) error {
	w, err := o.Get(id)
	if err != nil {
		return err
	}
	return w.Pause(ctx)
}

// Resume resumes a tracked workflow.
func (o *Orchestrator) Resume(ctx context.Context, id types.ID) error {
	w, err := o.Get(id)
	if err != nil {
		return err
	}
	return w.Resume(ctx)
}

// Status returns the current snapshot for a workflow.
func (o *Orchestrator) Status(id types.ID) (workflow.Snapshot, error) {
	w, err := o.Get(id)
	if err != nil {
		return workflow.Snapshot{}, err
	}
	return w.Snapshot(), nil
}

// Results returns the aggregated results for a workflow.
func (o *Orchestrator) Results(id types.ID) (map[string]map[string]any, error) {
	w, err := o.Get(id)
	if err != nil {
		return nil, err
	}
	return w.Results(), nil
}

// List returns snapshots of every tracked workflow.
func (o *Orchestrator) List() []workflow.Snapshot {
	o.mu.RLock()
	workflows := make([]*workflow.Workflow, 0, len(o.workflows))
	for _, w := range o.workflows {
		workflows = append(workflows, w)
	}
	o.mu.RUnlock()

	snaps := make([]workflow.Snapshot, 0, len(workflows))
	for _, w := range workflows {
		snaps = append(snaps, w.Snapshot())
	}
	return snaps
}

// Remove forgets a terminal workflow and clears its stored context.
// Removing a workflow that is still pending, running, or paused is an
// error.
func (o *Orchestrator) Remove(ctx context.Context, id types.ID) error {
	w, err := o.Get(id)
	if err != nil {
		return err
	}
	if !w.Status().IsTerminal() {
		return types.NewError(types.WORKFLOW_INVALID_STATE,
			fmt.Sprintf("cannot remove workflow %s in state %s", id, w.Status()))
	}

	o.mu.Lock()
	delete(o.workflows, id)
	o.mu.Unlock()

	if err := o.store.ClearContext(ctx, id); err != nil {
		o.logger.WarnContext(ctx, "failed to clear workflow context",
			"workflow_id", id,
			"error", err,
		)
	}
	return nil
}

// Wait blocks until every workflow launched via StartAsync has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
