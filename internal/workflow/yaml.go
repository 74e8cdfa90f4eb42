package workflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Rick1330/cybersage/internal/tool"
	"github.com/Rick1330/cybersage/internal/types"
)

// StepDefinition is the declarative form of a step. Conditions are
// expression strings evaluated against "params", "results", and "vars";
// cleanup hooks are code-only and cannot be declared in YAML.
type StepDefinition struct {
	Name       string         `yaml:"name"`
	Tool       string         `yaml:"tool"`
	Params     map[string]any `yaml:"params"`
	Condition  string         `yaml:"condition,omitempty"`
	RetryCount int            `yaml:"retry_count,omitempty"`
	Timeout    time.Duration  `yaml:"timeout,omitempty"`
}

// Definition is the declarative form of a workflow, loadable from YAML.
type Definition struct {
	Name          string              `yaml:"name"`
	Description   string              `yaml:"description,omitempty"`
	SecurityLevel types.SecurityLevel `yaml:"security_level,omitempty"`
	ContextType   types.ContextType   `yaml:"context_type,omitempty"`
	Steps         []StepDefinition    `yaml:"steps"`
}

// LoadDefinition reads and parses a workflow definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED,
			fmt.Sprintf("failed to read workflow definition %s", path), err)
	}
	return ParseDefinition(data)
}

// ParseDefinition parses and validates a YAML workflow definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED,
			"failed to parse workflow definition", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition for structural problems before any tool
// resolution happens.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "workflow name is required")
	}
	if len(d.Steps) == 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("workflow %q has no steps", d.Name))
	}
	if d.SecurityLevel != "" && !d.SecurityLevel.IsValid() {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("workflow %q has invalid security level %q", d.Name, d.SecurityLevel))
	}
	if d.ContextType != "" && !d.ContextType.IsValid() {
		return types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("workflow %q has invalid context type %q", d.Name, d.ContextType))
	}

	seen := make(map[string]bool, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("workflow %q: step %d has no name", d.Name, i))
		}
		if seen[step.Name] {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("workflow %q: duplicate step name %q", d.Name, step.Name))
		}
		seen[step.Name] = true
		if step.Tool == "" {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("workflow %q: step %q has no tool", d.Name, step.Name))
		}
		if step.RetryCount < 0 {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("workflow %q: step %q has negative retry count", d.Name, step.Name))
		}
		if step.Timeout < 0 {
			return types.NewError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("workflow %q: step %q has negative timeout", d.Name, step.Name))
		}
	}
	return nil
}

// StepDefaults supplies engine-level retry and timeout fallbacks for
// step definitions that set neither. Zero fields fall back to the
// package defaults.
type StepDefaults struct {
	RetryCount int
	Timeout    time.Duration
}

// Build resolves the definition against the tool registry and constructs
// a runnable workflow. Condition expressions are compiled here, so a bad
// expression fails construction, not execution.
func (d *Definition) Build(registry tool.Registry, opts ...Option) (*Workflow, error) {
	return d.BuildWithDefaults(registry, StepDefaults{}, opts...)
}

// BuildWithDefaults is Build with engine-level fallbacks: a step
// definition that omits retry_count or timeout inherits the defaults
// instead of the package constants.
func (d *Definition) BuildWithDefaults(registry tool.Registry, defaults StepDefaults, opts ...Option) (*Workflow, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	steps := make([]*Step, 0, len(d.Steps))
	for _, sd := range d.Steps {
		t, err := registry.Get(sd.Tool)
		if err != nil {
			return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("workflow %q: step %q references unknown tool %q", d.Name, sd.Name, sd.Tool), err)
		}

		retry := sd.RetryCount
		if retry == 0 {
			retry = defaults.RetryCount
		}
		timeout := sd.Timeout
		if timeout == 0 {
			timeout = defaults.Timeout
		}

		stepOpts := make([]StepOption, 0, 3)
		if retry > 0 {
			stepOpts = append(stepOpts, WithRetryCount(retry))
		}
		if timeout > 0 {
			stepOpts = append(stepOpts, WithStepTimeout(timeout))
		}
		if sd.Condition != "" {
			cond, err := NewExprCondition(sd.Condition)
			if err != nil {
				return nil, err
			}
			stepOpts = append(stepOpts, WithConditions(cond))
		}

		steps = append(steps, NewStep(sd.Name, registryTool{Tool: t, registry: registry}, sd.Params, stepOpts...))
	}

	if d.SecurityLevel != "" {
		opts = append(opts, WithSecurityLevel(d.SecurityLevel))
	}
	if d.ContextType != "" {
		opts = append(opts, WithContextType(d.ContextType))
	}

	return New(d.Name, d.Description, steps, opts...), nil
}

// registryTool dispatches execution through the registry so per-tool
// metrics record for definition-built workflows. Metadata and health
// come from the embedded tool.
type registryTool struct {
	tool.Tool
	registry tool.Registry
}

func (r registryTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	return r.registry.Execute(ctx, r.Name(), params)
}
