// Package scheduler runs workflows on cron schedules: periodic security
// sweeps, monitoring runs, scheduled report generation. Each tick builds
// a fresh workflow from the entry's definition, since workflows are
// single-use.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/Rick1330/cybersage/internal/orchestrator"
	"github.com/Rick1330/cybersage/internal/types"
	"github.com/Rick1330/cybersage/internal/workflow"
)

// Entry is one scheduled workflow: a cron expression (standard 5-field
// format) plus the definition to instantiate on each tick.
type Entry struct {
	Name       string
	Spec       string
	Definition *workflow.Definition
}

// Scheduler drives periodic workflow runs through an orchestrator.
// Overlapping runs of the same entry are skipped, not queued.
type Scheduler struct {
	cron   *cron.Cron
	orch   *orchestrator.Orchestrator
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// Option is a functional option for configuring a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a scheduler that runs entries through the orchestrator.
func New(orch *orchestrator.Orchestrator, opts ...Option) *Scheduler {
	s := &Scheduler{
		orch:    orch,
		logger:  slog.Default(),
		entries: make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithChain(
			cron.SkipIfStillRunning(cl),
			cron.Recover(cl),
		),
	)
	return s
}

// Add registers a scheduled entry. The cron expression is validated here
// so a bad schedule fails at configuration time.
func (s *Scheduler) Add(entry Entry) error {
	if entry.Name == "" {
		return types.NewError(types.SCHEDULE_INVALID, "schedule name is required")
	}
	if entry.Definition == nil {
		return types.NewError(types.SCHEDULE_INVALID,
			fmt.Sprintf("schedule %q has no workflow definition", entry.Name))
	}
	if err := entry.Definition.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.Name]; exists {
		return types.NewError(types.SCHEDULE_EXISTS,
			fmt.Sprintf("schedule %q already registered", entry.Name))
	}

	id, err := s.cron.AddFunc(entry.Spec, s.runFunc(entry))
	if err != nil {
		return types.WrapError(types.SCHEDULE_INVALID,
			fmt.Sprintf("invalid cron expression %q for schedule %q", entry.Spec, entry.Name), err)
	}

	s.entries[entry.Name] = id
	s.logger.Info("schedule registered",
		"schedule", entry.Name,
		"spec", entry.Spec,
		"workflow", entry.Definition.Name,
	)
	return nil
}

// Remove unregisters a scheduled entry. An in-flight run finishes.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.entries[name]
	if !exists {
		return types.NewError(types.SCHEDULE_INVALID,
			fmt.Sprintf("schedule %q not registered", name))
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	return nil
}

// Entries returns the names of all registered schedules.
func (s *Scheduler) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// Start begins dispatching ticks in the scheduler's own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts tick dispatch and blocks until in-flight runs finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runFunc builds the tick callback for one entry.
func (s *Scheduler) runFunc(entry Entry) func() {
	return func() {
		ctx := context.Background()

		w, err := s.orch.Create(entry.Definition)
		if err != nil {
			s.logger.Error("scheduled workflow build failed",
				"schedule", entry.Name,
				"workflow", entry.Definition.Name,
				"error", err,
			)
			return
		}

		s.logger.Info("scheduled workflow starting",
			"schedule", entry.Name,
			"workflow_id", w.ID,
		)
		if _, err := w.Start(ctx); err != nil {
			s.logger.Error("scheduled workflow failed",
				"schedule", entry.Name,
				"workflow_id", w.ID,
				"error", err,
			)
		} else {
			s.logger.Info("scheduled workflow completed",
				"schedule", entry.Name,
				"workflow_id", w.ID,
			)
		}

		// The run is terminal either way. Untrack it so the orchestrator
		// registry does not grow with every tick.
		if err := s.orch.Remove(ctx, w.ID); err != nil {
			s.logger.Warn("failed to untrack scheduled workflow",
				"schedule", entry.Name,
				"workflow_id", w.ID,
				"error", err,
			)
		}
	}
}

// cronLogger adapts slog to the cron logging interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
