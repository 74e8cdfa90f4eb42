package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rick1330/cybersage/internal/orchestrator"
	"github.com/Rick1330/cybersage/internal/tool"
	"github.com/Rick1330/cybersage/internal/types"
	"github.com/Rick1330/cybersage/internal/workflow"
)

type pingTool struct{}

func (pingTool) Name() string        { return "ping" }
func (pingTool) Version() string     { return "1.0.0" }
func (pingTool) Description() string { return "ping tool" }
func (pingTool) Tags() []string      { return []string{"test"} }

func (pingTool) Health(ctx context.Context) types.HealthStatus {
	return types.Healthy("ok")
}

func (pingTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	return map[string]any{"pong": true}, nil
}

func sweepDefinition() *workflow.Definition {
	return &workflow.Definition{
		Name: "nightly-sweep",
		Steps: []workflow.StepDefinition{
			{Name: "ping", Tool: "ping"},
		},
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *orchestrator.Orchestrator, *tool.DefaultRegistry) {
	t.Helper()
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(pingTool{}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := orchestrator.New(registry, orchestrator.WithLogger(logger))
	return New(orch, WithLogger(logger)), orch, registry
}

func TestSchedulerAdd(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	err := s.Add(Entry{Name: "sweep", Spec: "0 2 * * *", Definition: sweepDefinition()})
	require.NoError(t, err)
	assert.Equal(t, []string{"sweep"}, s.Entries())
}

func TestSchedulerAddInvalid(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	tests := []struct {
		name  string
		entry Entry
		code  types.ErrorCode
	}{
		{
			name:  "missing name",
			entry: Entry{Spec: "* * * * *", Definition: sweepDefinition()},
			code:  types.SCHEDULE_INVALID,
		},
		{
			name:  "missing definition",
			entry: Entry{Name: "sweep", Spec: "* * * * *"},
			code:  types.SCHEDULE_INVALID,
		},
		{
			name:  "bad cron expression",
			entry: Entry{Name: "sweep", Spec: "not a cron", Definition: sweepDefinition()},
			code:  types.SCHEDULE_INVALID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(tt.entry)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.NewError(tt.code, ""))
		})
	}
}

func TestSchedulerAddDuplicate(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	entry := Entry{Name: "sweep", Spec: "0 2 * * *", Definition: sweepDefinition()}
	require.NoError(t, s.Add(entry))

	err := s.Add(entry)
	assert.ErrorIs(t, err, types.NewError(types.SCHEDULE_EXISTS, ""))
}

func TestSchedulerRemove(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	require.NoError(t, s.Add(Entry{Name: "sweep", Spec: "0 2 * * *", Definition: sweepDefinition()}))
	require.NoError(t, s.Remove("sweep"))
	assert.Empty(t, s.Entries())

	err := s.Remove("sweep")
	assert.ErrorIs(t, err, types.NewError(types.SCHEDULE_INVALID, ""))
}

func TestSchedulerTickRunsWorkflow(t *testing.T) {
	s, orch, registry := newTestScheduler(t)

	entry := Entry{Name: "sweep", Spec: "0 2 * * *", Definition: sweepDefinition()}
	require.NoError(t, s.Add(entry))

	// Drive one tick directly instead of waiting on the cron clock.
	s.runFunc(entry)()

	// The run executed the tool once and was untracked on completion.
	metrics, err := registry.Metrics("ping")
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.SuccessCalls)
	assert.Empty(t, orch.List())
}

func TestSchedulerTicksDoNotAccumulateWorkflows(t *testing.T) {
	s, orch, registry := newTestScheduler(t)

	entry := Entry{Name: "sweep", Spec: "@hourly", Definition: sweepDefinition()}
	require.NoError(t, s.Add(entry))

	const ticks = 25
	for i := 0; i < ticks; i++ {
		s.runFunc(entry)()
	}

	metrics, err := registry.Metrics("ping")
	require.NoError(t, err)
	assert.Equal(t, int64(ticks), metrics.SuccessCalls)
	assert.Empty(t, orch.List(), "terminal scheduled runs must be untracked")
}

func TestSchedulerStartStop(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	require.NoError(t, s.Add(Entry{Name: "sweep", Spec: "0 2 * * *", Definition: sweepDefinition()}))

	s.Start()
	s.Stop()
}
