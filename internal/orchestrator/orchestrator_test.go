package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rick1330/cybersage/internal/contextstore"
	"github.com/Rick1330/cybersage/internal/tool"
	"github.com/Rick1330/cybersage/internal/types"
	"github.com/Rick1330/cybersage/internal/workflow"
)

type echoTool struct {
	name  string
	block chan struct{} // when non-nil, Execute waits for close or ctx
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Version() string     { return "1.0.0" }
func (t *echoTool) Description() string { return "echo tool" }
func (t *echoTool) Tags() []string      { return []string{"test"} }

func (t *echoTool) Health(ctx context.Context) types.HealthStatus {
	return types.Healthy("ok")
}

func (t *echoTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return map[string]any{"echo": params["msg"]}, nil
}

func newTestOrchestrator(t *testing.T, tools ...tool.Tool) *Orchestrator {
	t.Helper()
	registry := tool.NewRegistry()
	for _, tl := range tools {
		require.NoError(t, registry.Register(tl))
	}
	return New(registry,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithContextStore(contextstore.NewMemoryStore()),
	)
}

func simpleDefinition() *workflow.Definition {
	return &workflow.Definition{
		Name: "echo-run",
		Steps: []workflow.StepDefinition{
			{Name: "say", Tool: "echo", Params: map[string]any{"msg": "hello"}},
		},
	}
}

func TestOrchestratorCreateAndStart(t *testing.T) {
	o := newTestOrchestrator(t, &echoTool{name: "echo"})

	w, err := o.Create(simpleDefinition())
	require.NoError(t, err)

	results, err := o.Start(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", results["say"]["echo"])

	snap, err := o.Status(w.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, snap.Status)
}

func TestOrchestratorUnknownWorkflow(t *testing.T) {
	o := newTestOrchestrator(t, &echoTool{name: "echo"})
	missing := types.NewID()

	_, err := o.Start(context.Background(), missing)
	assert.ErrorIs(t, err, types.NewError(types.WORKFLOW_NOT_FOUND, ""))

	assert.Error(t, o.Cancel(context.Background(), missing))
	assert.Error(t, o.Pause(context.Background(), missing))
	assert.Error(t, o.Resume(context.Background(), missing))

	_, err = o.Status(missing)
	assert.Error(t, err)
}

func TestOrchestratorTrackDuplicate(t *testing.T) {
	o := newTestOrchestrator(t, &echoTool{name: "echo"})

	w, err := o.Create(simpleDefinition())
	require.NoError(t, err)

	err = o.Track(w)
	assert.ErrorIs(t, err, types.NewError(types.WORKFLOW_EXISTS, ""))
}

func TestOrchestratorStartAsyncAndCancel(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	o := newTestOrchestrator(t, &echoTool{name: "echo", block: block})

	w, err := o.Create(simpleDefinition())
	require.NoError(t, err)

	require.NoError(t, o.StartAsync(context.Background(), w.ID))

	require.Eventually(t, func() bool {
		return w.Status() == workflow.StatusRunning
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, o.Cancel(context.Background(), w.ID))
	o.Wait()

	snap, err := o.Status(w.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCancelled, snap.Status)
}

func TestOrchestratorCreateAppliesStepDefaults(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "echo"}))

	o := New(registry,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithStepDefaults(workflow.StepDefaults{
			RetryCount: 7,
			Timeout:    45 * time.Second,
		}),
	)

	w, err := o.Create(simpleDefinition())
	require.NoError(t, err)

	step := w.Steps()[0]
	assert.Equal(t, 7, step.RetryCount)
	assert.Equal(t, 45*time.Second, step.Timeout)
}

func TestOrchestratorList(t *testing.T) {
	o := newTestOrchestrator(t, &echoTool{name: "echo"})

	_, err := o.Create(simpleDefinition())
	require.NoError(t, err)
	_, err = o.Create(simpleDefinition())
	require.NoError(t, err)

	snaps := o.List()
	assert.Len(t, snaps, 2)
}

func TestOrchestratorRemove(t *testing.T) {
	o := newTestOrchestrator(t, &echoTool{name: "echo"})

	w, err := o.Create(simpleDefinition())
	require.NoError(t, err)

	// Not terminal yet.
	err = o.Remove(context.Background(), w.ID)
	assert.ErrorIs(t, err, types.NewError(types.WORKFLOW_INVALID_STATE, ""))

	_, err = o.Start(context.Background(), w.ID)
	require.NoError(t, err)

	require.NoError(t, o.Remove(context.Background(), w.ID))
	_, err = o.Get(w.ID)
	assert.ErrorIs(t, err, types.NewError(types.WORKFLOW_NOT_FOUND, ""))
}

func TestOrchestratorSharesContextStore(t *testing.T) {
	store := contextstore.NewMemoryStore()
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "echo"}))

	o := New(registry,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithContextStore(store),
	)

	w, err := o.Create(simpleDefinition())
	require.NoError(t, err)
	_, err = o.Start(context.Background(), w.ID)
	require.NoError(t, err)

	wctx, err := store.GetContext(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Contains(t, wctx.State, "step_0")
}
