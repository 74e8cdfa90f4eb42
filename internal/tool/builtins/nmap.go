// Package builtins provides the stock security-assessment tools invoked
// by workflow steps: network scanning, WHOIS lookup, and threat
// intelligence queries. Each tool is a thin wrapper around an external
// binary or API; scan correctness and protocol depth live outside the
// engine.
package builtins

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Rick1330/cybersage/internal/tool"
	"github.com/Rick1330/cybersage/internal/types"
)

var (
	targetPattern    = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$|^[\w\-.]+$`)
	osDetailsPattern = regexp.MustCompile(`OS details:.*`)
)

// nmap flag sets per scan type. Anything outside this map is rejected so
// params can never smuggle arbitrary flags into the command line.
var nmapScanTypes = map[string][]string{
	"basic":   {"-sS", "-T4"},
	"service": {"-sV"},
	"os":      {"-O"},
	"script":  {"-sC"},
}

// NmapTool wraps the nmap binary for network scans.
//
// Params: "target" (required, IP or hostname), "scan_type" (optional,
// basic|service|os|script, default basic), "ports" (optional, e.g.
// "80,443" or "1-1000").
type NmapTool struct {
	binary string
}

// NewNmapTool creates the nmap tool.
func NewNmapTool() *NmapTool {
	return &NmapTool{binary: "nmap"}
}

func (t *NmapTool) Name() string        { return "nmap" }
func (t *NmapTool) Version() string     { return "1.0.0" }
func (t *NmapTool) Description() string { return "Network scanning via nmap" }
func (t *NmapTool) Tags() []string      { return []string{"network", "scanner"} }

// Health reports whether the nmap binary is on PATH.
func (t *NmapTool) Health(ctx context.Context) types.HealthStatus {
	if _, err := exec.LookPath(t.binary); err != nil {
		return types.Unhealthy("nmap binary not found on PATH")
	}
	return types.Healthy("nmap available")
}

// Execute implements tool.Tool.
func (t *NmapTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	args, target, err := t.buildArgs(params)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, t.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, types.WrapError(tool.ErrToolExecutionFailed,
			fmt.Sprintf("nmap scan of %s failed", target), err)
	}

	return map[string]any{
		"target": target,
		"stdout": sanitizeNmapOutput(string(output)),
	}, nil
}

// buildArgs validates params and assembles the argument vector.
func (t *NmapTool) buildArgs(params map[string]any) ([]string, string, error) {
	target, _ := params["target"].(string)
	if target == "" || !targetPattern.MatchString(target) {
		return nil, "", types.NewError(tool.ErrToolInvalidInput,
			fmt.Sprintf("invalid scan target %q", target))
	}

	scanType, _ := params["scan_type"].(string)
	if scanType == "" {
		scanType = "basic"
	}
	flags, ok := nmapScanTypes[scanType]
	if !ok {
		return nil, "", types.NewError(tool.ErrToolInvalidInput,
			fmt.Sprintf("invalid scan type %q", scanType))
	}

	args := append([]string{}, flags...)
	if ports, _ := params["ports"].(string); ports != "" {
		if strings.ContainsAny(ports, " \t;|&") {
			return nil, "", types.NewError(tool.ErrToolInvalidInput,
				fmt.Sprintf("invalid port specification %q", ports))
		}
		args = append(args, "-p", ports)
	}
	args = append(args, target)
	return args, target, nil
}

// sanitizeNmapOutput strips exact OS fingerprints from scan output.
func sanitizeNmapOutput(output string) string {
	return osDetailsPattern.ReplaceAllString(output, "OS details: [REDACTED]")
}

var _ tool.Tool = (*NmapTool)(nil)
