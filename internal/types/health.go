package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// HealthState classifies the availability of an engine collaborator.
// Tools, stores, and sinks report one of three states; anything else is
// rejected at decode time.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

func (s HealthState) String() string {
	return string(s)
}

// IsValid reports whether s is one of the three known states.
func (s HealthState) IsValid() bool {
	switch s {
	case HealthStateHealthy, HealthStateDegraded, HealthStateUnhealthy:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown states so a bad value surfaces when it
// is decoded, not later when it is compared.
func (s *HealthState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	state := HealthState(raw)
	if !state.IsValid() {
		return fmt.Errorf("invalid health state %q", raw)
	}
	*s = state
	return nil
}

// HealthStatus is a point-in-time health report: the state, a short
// reason, and when the check ran.
type HealthStatus struct {
	State     HealthState `json:"state"`
	Message   string      `json:"message,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Healthy reports a fully available component.
func Healthy(message string) HealthStatus {
	return checkedNow(HealthStateHealthy, message)
}

// Degraded reports a partially available component.
func Degraded(message string) HealthStatus {
	return checkedNow(HealthStateDegraded, message)
}

// Unhealthy reports an unavailable component.
func Unhealthy(message string) HealthStatus {
	return checkedNow(HealthStateUnhealthy, message)
}

func checkedNow(state HealthState, message string) HealthStatus {
	return HealthStatus{
		State:     state,
		Message:   message,
		CheckedAt: time.Now().UTC(),
	}
}

func (h HealthStatus) IsHealthy() bool   { return h.State == HealthStateHealthy }
func (h HealthStatus) IsDegraded() bool  { return h.State == HealthStateDegraded }
func (h HealthStatus) IsUnhealthy() bool { return h.State == HealthStateUnhealthy }
