package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID()
	assert.False(t, id.IsZero())
	assert.NoError(t, id.Validate())
	assert.NotEqual(t, id, NewID())
}

func TestParseID(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseID("")
	assert.Error(t, err)

	_, err = ParseID("not-a-uuid")
	assert.Error(t, err)
}

func TestIDJSONRoundTrip(t *testing.T) {
	id := NewID()

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var back ID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back)

	// Zero ids marshal as null.
	data, err = json.Marshal(ID(""))
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	var invalid ID
	assert.Error(t, json.Unmarshal([]byte(`"not-a-uuid"`), &invalid))
}

func TestCyberSageErrorFormat(t *testing.T) {
	err := NewError(WORKFLOW_FAILED, "workflow failed")
	assert.Equal(t, "[WORKFLOW_FAILED] workflow failed", err.Error())
	assert.False(t, err.Retryable)

	wrapped := WrapError(CONTEXT_UPDATE_FAILED, "update failed", fmt.Errorf("socket closed"))
	assert.Equal(t, "[CONTEXT_UPDATE_FAILED] update failed: socket closed", wrapped.Error())
}

func TestCyberSageErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := WrapError(AUDIT_WRITE_FAILED, "write failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestCyberSageErrorIsMatchesByCode(t *testing.T) {
	err := NewError(WORKFLOW_CANCELLED, "cancelled mid-run")

	assert.ErrorIs(t, err, NewError(WORKFLOW_CANCELLED, "different message"))
	assert.NotErrorIs(t, err, NewError(WORKFLOW_FAILED, ""))

	// Matching works through wrapping.
	outer := fmt.Errorf("outer: %w", err)
	assert.ErrorIs(t, outer, NewError(WORKFLOW_CANCELLED, ""))
}

func TestNewRetryableError(t *testing.T) {
	err := NewRetryableError(CONTEXT_UPDATE_FAILED, "transient")
	assert.True(t, err.Retryable)
}

func TestHealthStatusConstructors(t *testing.T) {
	h := Healthy("all good")
	assert.True(t, h.IsHealthy())
	assert.False(t, h.IsDegraded())
	assert.False(t, h.CheckedAt.IsZero())

	assert.True(t, Degraded("partially down").IsDegraded())
	assert.True(t, Unhealthy("down").IsUnhealthy())
}

func TestHealthStateJSON(t *testing.T) {
	data, err := json.Marshal(HealthStateDegraded)
	require.NoError(t, err)
	assert.Equal(t, `"degraded"`, string(data))

	var s HealthState
	require.NoError(t, json.Unmarshal([]byte(`"healthy"`), &s))
	assert.Equal(t, HealthStateHealthy, s)

	assert.Error(t, json.Unmarshal([]byte(`"zombie"`), &s))
}

func TestSecurityLevel(t *testing.T) {
	assert.True(t, SecurityLevelHigh.IsValid())
	assert.False(t, SecurityLevel("extreme").IsValid())

	assert.True(t, SecurityLevelHigh.IsSensitive())
	assert.True(t, SecurityLevelCritical.IsSensitive())
	assert.False(t, SecurityLevelLow.IsSensitive())
	assert.False(t, SecurityLevelMedium.IsSensitive())
}

func TestContextType(t *testing.T) {
	assert.True(t, ContextTypeThreatAnalysis.IsValid())
	assert.False(t, ContextType("gardening").IsValid())
	assert.Equal(t, "security_scan", ContextTypeSecurityScan.String())
}
