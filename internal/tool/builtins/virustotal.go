package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Rick1330/cybersage/internal/tool"
	"github.com/Rick1330/cybersage/internal/types"
)

const defaultVirusTotalURL = "https://www.virustotal.com/vtapi/v2"

// DefaultVTCacheTTL bounds how long a report is served from cache before
// the API is queried again.
const DefaultVTCacheTTL = time.Hour

// report endpoints per resource type.
var vtEndpoints = map[string]string{
	"file":   "/file/report",
	"url":    "/url/report",
	"domain": "/domain/report",
	"ip":     "/ip-address/report",
}

type vtCacheEntry struct {
	result  map[string]any
	fetched time.Time
}

// VirusTotalTool queries the VirusTotal report API for file, URL,
// domain, and IP reputation. Reports are cached per resource with a TTL
// since the free API is heavily rate limited.
//
// Params: "resource" (required), "resource_type" (required, one of
// file|url|domain|ip), "refresh_cache" (optional bool).
type VirusTotalTool struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]vtCacheEntry
}

// VirusTotalOption is a functional option for configuring VirusTotalTool.
type VirusTotalOption func(*VirusTotalTool)

// WithVirusTotalBaseURL overrides the API endpoint. Used by tests.
func WithVirusTotalBaseURL(u string) VirusTotalOption {
	return func(t *VirusTotalTool) {
		if u != "" {
			t.baseURL = u
		}
	}
}

// WithVirusTotalHTTPClient overrides the HTTP client.
func WithVirusTotalHTTPClient(c *http.Client) VirusTotalOption {
	return func(t *VirusTotalTool) {
		if c != nil {
			t.client = c
		}
	}
}

// WithVirusTotalCacheTTL overrides the report cache TTL.
func WithVirusTotalCacheTTL(ttl time.Duration) VirusTotalOption {
	return func(t *VirusTotalTool) {
		if ttl > 0 {
			t.cacheTTL = ttl
		}
	}
}

// NewVirusTotalTool creates the VirusTotal tool with the given API key.
func NewVirusTotalTool(apiKey string, opts ...VirusTotalOption) *VirusTotalTool {
	t := &VirusTotalTool{
		apiKey:   apiKey,
		baseURL:  defaultVirusTotalURL,
		client:   &http.Client{Timeout: time.Minute},
		cacheTTL: DefaultVTCacheTTL,
		cache:    make(map[string]vtCacheEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *VirusTotalTool) Name() string        { return "virustotal" }
func (t *VirusTotalTool) Version() string     { return "1.0.0" }
func (t *VirusTotalTool) Description() string { return "Threat intelligence via VirusTotal" }
func (t *VirusTotalTool) Tags() []string      { return []string{"intelligence", "reputation"} }

// Health reports whether the tool has an API key configured.
func (t *VirusTotalTool) Health(ctx context.Context) types.HealthStatus {
	if t.apiKey == "" {
		return types.Unhealthy("virustotal API key not configured")
	}
	return types.Healthy("virustotal configured")
}

// Execute implements tool.Tool.
func (t *VirusTotalTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	resource, resourceType, err := validateVTParams(params)
	if err != nil {
		return nil, err
	}
	if t.apiKey == "" {
		return nil, types.NewError(tool.ErrToolExecutionFailed, "virustotal API key not configured")
	}

	refresh, _ := params["refresh_cache"].(bool)
	cacheKey := resourceType + ":" + resource

	if !refresh {
		if cached, ok := t.cachedResult(cacheKey); ok {
			return cached, nil
		}
	}

	endpoint := fmt.Sprintf("%s%s?%s", t.baseURL, vtEndpoints[resourceType], url.Values{
		"apikey":   {t.apiKey},
		"resource": {resource},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.WrapError(tool.ErrToolExecutionFailed, "failed to build virustotal request", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, types.WrapError(tool.ErrToolExecutionFailed, "virustotal request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(tool.ErrToolExecutionFailed,
			fmt.Sprintf("virustotal API returned status %d", resp.StatusCode))
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, types.WrapError(tool.ErrToolExecutionFailed, "failed to decode virustotal response", err)
	}
	delete(data, "apikey")

	result := map[string]any{
		"resource":      resource,
		"resource_type": resourceType,
		"analysis":      data,
	}

	t.mu.Lock()
	t.cache[cacheKey] = vtCacheEntry{result: result, fetched: time.Now()}
	t.mu.Unlock()

	return result, nil
}

func (t *VirusTotalTool) cachedResult(key string) (map[string]any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.cache[key]
	if !ok || time.Since(entry.fetched) >= t.cacheTTL {
		delete(t.cache, key)
		return nil, false
	}
	return entry.result, true
}

func validateVTParams(params map[string]any) (string, string, error) {
	resource, _ := params["resource"].(string)
	if resource == "" {
		return "", "", types.NewError(tool.ErrToolInvalidInput, "resource is required")
	}

	resourceType, _ := params["resource_type"].(string)
	if _, ok := vtEndpoints[resourceType]; !ok {
		return "", "", types.NewError(tool.ErrToolInvalidInput,
			fmt.Sprintf("invalid resource type %q", resourceType))
	}

	switch resourceType {
	case "file":
		for _, c := range resource {
			if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
				return "", "", types.NewError(tool.ErrToolInvalidInput,
					fmt.Sprintf("invalid hash %q", resource))
			}
		}
	case "url":
		if !strings.HasPrefix(resource, "http://") && !strings.HasPrefix(resource, "https://") {
			return "", "", types.NewError(tool.ErrToolInvalidInput,
				fmt.Sprintf("invalid URL %q", resource))
		}
	case "ip":
		if !ipv4Pattern.MatchString(resource) {
			return "", "", types.NewError(tool.ErrToolInvalidInput,
				fmt.Sprintf("invalid IP %q", resource))
		}
	}
	return resource, resourceType, nil
}

var _ tool.Tool = (*VirusTotalTool)(nil)
