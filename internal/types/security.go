package types

// SecurityLevel classifies a workflow or context for external policy and
// audit logic. The engine carries the level but never interprets it.
type SecurityLevel string

const (
	SecurityLevelLow      SecurityLevel = "low"
	SecurityLevelMedium   SecurityLevel = "medium"
	SecurityLevelHigh     SecurityLevel = "high"
	SecurityLevelCritical SecurityLevel = "critical"
)

// String returns the string representation of the security level.
func (l SecurityLevel) String() string {
	return string(l)
}

// IsValid checks if the SecurityLevel is a valid value.
func (l SecurityLevel) IsValid() bool {
	switch l {
	case SecurityLevelLow, SecurityLevelMedium, SecurityLevelHigh, SecurityLevelCritical:
		return true
	default:
		return false
	}
}

// IsSensitive returns true for levels that require security context
// tracking (high and critical).
func (l SecurityLevel) IsSensitive() bool {
	return l == SecurityLevelHigh || l == SecurityLevelCritical
}

// ContextType identifies the kind of assessment a workflow context belongs to.
type ContextType string

const (
	ContextTypeSecurityScan            ContextType = "security_scan"
	ContextTypeThreatAnalysis          ContextType = "threat_analysis"
	ContextTypeIncidentResponse        ContextType = "incident_response"
	ContextTypeComplianceCheck         ContextType = "compliance_check"
	ContextTypeVulnerabilityAssessment ContextType = "vulnerability_assessment"
)

// String returns the string representation of the context type.
func (t ContextType) String() string {
	return string(t)
}

// IsValid checks if the ContextType is a valid value.
func (t ContextType) IsValid() bool {
	switch t {
	case ContextTypeSecurityScan, ContextTypeThreatAnalysis, ContextTypeIncidentResponse,
		ContextTypeComplianceCheck, ContextTypeVulnerabilityAssessment:
		return true
	default:
		return false
	}
}
