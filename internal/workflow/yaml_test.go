package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rick1330/cybersage/internal/tool"
	"github.com/Rick1330/cybersage/internal/types"
)

const sampleDefinition = `
name: perimeter-scan
description: scan the perimeter and report
security_level: high
context_type: vulnerability_assessment
steps:
  - name: port_scan
    tool: nmap
    params:
      target: example.com
    retry_count: 2
    timeout: 30s
  - name: exploit_check
    tool: nmap
    condition: "results.port_scan.open_ports > 0"
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(sampleDefinition))
	require.NoError(t, err)

	assert.Equal(t, "perimeter-scan", def.Name)
	assert.Equal(t, types.SecurityLevelHigh, def.SecurityLevel)
	assert.Equal(t, types.ContextTypeVulnerabilityAssessment, def.ContextType)
	require.Len(t, def.Steps, 2)
	assert.Equal(t, 2, def.Steps[0].RetryCount)
	assert.Equal(t, 30*time.Second, def.Steps[0].Timeout)
	assert.Equal(t, "results.port_scan.open_ports > 0", def.Steps[1].Condition)
}

func TestParseDefinitionInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", ":\n  - ["},
		{"missing name", "steps:\n  - name: a\n    tool: t\n"},
		{"no steps", "name: empty\n"},
		{"unnamed step", "name: w\nsteps:\n  - tool: t\n"},
		{"step without tool", "name: w\nsteps:\n  - name: a\n"},
		{"duplicate step names", "name: w\nsteps:\n  - name: a\n    tool: t\n  - name: a\n    tool: t\n"},
		{"bad security level", "name: w\nsecurity_level: extreme\nsteps:\n  - name: a\n    tool: t\n"},
		{"bad context type", "name: w\ncontext_type: nonsense\nsteps:\n  - name: a\n    tool: t\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDefinitionBuild(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&stubTool{name: "nmap"}))

	def, err := ParseDefinition([]byte(sampleDefinition))
	require.NoError(t, err)

	w, err := def.Build(registry)
	require.NoError(t, err)

	assert.Equal(t, "perimeter-scan", w.Name)
	assert.Equal(t, types.SecurityLevelHigh, w.SecurityLevel)
	require.Len(t, w.Steps(), 2)

	first := w.Steps()[0]
	assert.Equal(t, 2, first.RetryCount)
	assert.Equal(t, 30*time.Second, first.Timeout)
	assert.Equal(t, "example.com", first.Params["target"])

	second := w.Steps()[1]
	assert.Equal(t, DefaultRetryCount, second.RetryCount)
	require.Len(t, second.Conditions, 1)
}

func TestDefinitionBuildAppliesDefaults(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&stubTool{name: "nmap"}))

	def, err := ParseDefinition([]byte(sampleDefinition))
	require.NoError(t, err)

	w, err := def.BuildWithDefaults(registry, StepDefaults{
		RetryCount: 5,
		Timeout:    90 * time.Second,
	})
	require.NoError(t, err)

	// Explicit step values win over the engine defaults.
	first := w.Steps()[0]
	assert.Equal(t, 2, first.RetryCount)
	assert.Equal(t, 30*time.Second, first.Timeout)

	// A step that sets neither inherits them.
	second := w.Steps()[1]
	assert.Equal(t, 5, second.RetryCount)
	assert.Equal(t, 90*time.Second, second.Timeout)
}

func TestDefinitionBuildDispatchesThroughRegistry(t *testing.T) {
	registry := tool.NewRegistry()
	stub := &stubTool{name: "nmap"}
	require.NoError(t, registry.Register(stub))

	def := &Definition{
		Name: "metered",
		Steps: []StepDefinition{
			{Name: "scan", Tool: "nmap"},
		},
	}

	w, err := def.Build(registry, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = w.Start(context.Background())
	require.NoError(t, err)

	metrics, err := registry.Metrics("nmap")
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.SuccessCalls)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestDefinitionBuildUnknownTool(t *testing.T) {
	registry := tool.NewRegistry()

	def, err := ParseDefinition([]byte(sampleDefinition))
	require.NoError(t, err)

	_, err = def.Build(registry)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.CONFIG_VALIDATION_FAILED, ""))
}

func TestDefinitionBuildBadCondition(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&stubTool{name: "nmap"}))

	def := &Definition{
		Name: "broken",
		Steps: []StepDefinition{
			{Name: "a", Tool: "nmap", Condition: "(("},
		},
	}

	_, err := def.Build(registry)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.CONDITION_FAILED, ""))
}
