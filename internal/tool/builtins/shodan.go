package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Rick1330/cybersage/internal/tool"
	"github.com/Rick1330/cybersage/internal/types"
)

const defaultShodanURL = "https://api.shodan.io"

// query terms rejected outright; the engine is an assessment tool, not a
// hunting ground.
var prohibitedShodanTerms = []string{"malware", "botnet", "ransomware"}

// ShodanTool queries the Shodan search API for internet-wide scan data.
//
// Params: "query" (required, at least 3 characters), "limit" (optional,
// default 100).
type ShodanTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// ShodanOption is a functional option for configuring ShodanTool.
type ShodanOption func(*ShodanTool)

// WithShodanBaseURL overrides the API endpoint. Used by tests.
func WithShodanBaseURL(u string) ShodanOption {
	return func(t *ShodanTool) {
		if u != "" {
			t.baseURL = u
		}
	}
}

// WithShodanHTTPClient overrides the HTTP client.
func WithShodanHTTPClient(c *http.Client) ShodanOption {
	return func(t *ShodanTool) {
		if c != nil {
			t.client = c
		}
	}
}

// NewShodanTool creates the Shodan tool with the given API key.
func NewShodanTool(apiKey string, opts ...ShodanOption) *ShodanTool {
	t := &ShodanTool{
		apiKey:  apiKey,
		baseURL: defaultShodanURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *ShodanTool) Name() string        { return "shodan" }
func (t *ShodanTool) Version() string     { return "1.0.0" }
func (t *ShodanTool) Description() string { return "Internet-wide device search via Shodan" }
func (t *ShodanTool) Tags() []string      { return []string{"intelligence", "search"} }

// Health reports whether the tool has an API key configured.
func (t *ShodanTool) Health(ctx context.Context) types.HealthStatus {
	if t.apiKey == "" {
		return types.Unhealthy("shodan API key not configured")
	}
	return types.Healthy("shodan configured")
}

// Execute implements tool.Tool.
func (t *ShodanTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	query, limit, err := validateShodanParams(params)
	if err != nil {
		return nil, err
	}
	if t.apiKey == "" {
		return nil, types.NewError(tool.ErrToolExecutionFailed, "shodan API key not configured")
	}

	endpoint := fmt.Sprintf("%s/shodan/host/search?%s", t.baseURL, url.Values{
		"key":   {t.apiKey},
		"query": {query},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.WrapError(tool.ErrToolExecutionFailed, "failed to build shodan request", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, types.WrapError(tool.ErrToolExecutionFailed, "shodan request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(tool.ErrToolExecutionFailed,
			fmt.Sprintf("shodan API returned status %d", resp.StatusCode))
	}

	var payload struct {
		Total   int `json:"total"`
		Matches []struct {
			IP        string   `json:"ip_str"`
			Port      int      `json:"port"`
			Hostnames []string `json:"hostnames"`
			Org       string   `json:"org"`
			Product   string   `json:"product"`
			Location  struct {
				Country string `json:"country_name"`
				City    string `json:"city"`
			} `json:"location"`
		} `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.WrapError(tool.ErrToolExecutionFailed, "failed to decode shodan response", err)
	}

	matches := make([]map[string]any, 0, limit)
	for i, m := range payload.Matches {
		if i >= limit {
			break
		}
		ip := m.IP
		if isInternalIP(ip) {
			ip = "[REDACTED-INTERNAL]"
		}
		matches = append(matches, map[string]any{
			"ip":           ip,
			"port":         m.Port,
			"hostnames":    m.Hostnames,
			"organization": m.Org,
			"product":      m.Product,
			"location": map[string]any{
				"country": m.Location.Country,
				"city":    m.Location.City,
			},
		})
	}

	return map[string]any{
		"query":   query,
		"total":   payload.Total,
		"matches": matches,
	}, nil
}

func validateShodanParams(params map[string]any) (string, int, error) {
	query, _ := params["query"].(string)
	if len(query) < 3 {
		return "", 0, types.NewError(tool.ErrToolInvalidInput, "query too short or empty")
	}
	lower := strings.ToLower(query)
	for _, term := range prohibitedShodanTerms {
		if strings.Contains(lower, term) {
			return "", 0, types.NewError(tool.ErrToolInvalidInput,
				fmt.Sprintf("query contains prohibited term %q", term))
		}
	}

	limit := 100
	switch v := params["limit"].(type) {
	case int:
		limit = v
	case float64:
		limit = int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	return query, limit, nil
}

// isInternalIP reports whether an IPv4 address is in a private range.
func isInternalIP(ip string) bool {
	if strings.HasPrefix(ip, "10.") || strings.HasPrefix(ip, "192.168.") {
		return true
	}
	for i := 16; i <= 31; i++ {
		if strings.HasPrefix(ip, fmt.Sprintf("172.%d.", i)) {
			return true
		}
	}
	return false
}

var _ tool.Tool = (*ShodanTool)(nil)
