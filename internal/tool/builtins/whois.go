package builtins

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"

	"github.com/Rick1330/cybersage/internal/tool"
	"github.com/Rick1330/cybersage/internal/types"
)

var (
	domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)
	ipv4Pattern   = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
)

// WhoisTool wraps the whois binary for domain and IP registration
// lookups.
//
// Params: "target" (required, domain name or IPv4 address).
type WhoisTool struct {
	binary string
}

// NewWhoisTool creates the whois tool.
func NewWhoisTool() *WhoisTool {
	return &WhoisTool{binary: "whois"}
}

func (t *WhoisTool) Name() string        { return "whois" }
func (t *WhoisTool) Version() string     { return "1.0.0" }
func (t *WhoisTool) Description() string { return "Domain and IP WHOIS lookup" }
func (t *WhoisTool) Tags() []string      { return []string{"network", "lookup"} }

// Health reports whether the whois binary is on PATH.
func (t *WhoisTool) Health(ctx context.Context) types.HealthStatus {
	if _, err := exec.LookPath(t.binary); err != nil {
		return types.Unhealthy("whois binary not found on PATH")
	}
	return types.Healthy("whois available")
}

// Execute implements tool.Tool.
func (t *WhoisTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	target, err := validateWhoisTarget(params)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, t.binary, target)
	output, err := cmd.Output()
	if err != nil {
		return nil, types.WrapError(tool.ErrToolExecutionFailed,
			fmt.Sprintf("whois lookup of %s failed", target), err)
	}

	return map[string]any{
		"target": target,
		"record": string(output),
	}, nil
}

func validateWhoisTarget(params map[string]any) (string, error) {
	target, _ := params["target"].(string)
	if target == "" {
		return "", types.NewError(tool.ErrToolInvalidInput, "target is required")
	}
	if !domainPattern.MatchString(target) && !ipv4Pattern.MatchString(target) {
		return "", types.NewError(tool.ErrToolInvalidInput,
			fmt.Sprintf("invalid domain or IP %q", target))
	}
	return target, nil
}

var _ tool.Tool = (*WhoisTool)(nil)
