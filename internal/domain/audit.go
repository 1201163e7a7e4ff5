package domain

import "time"

// AuditEventType classifies audit trail entries.
type AuditEventType string

const (
	AuditBatchScored     AuditEventType = "batch_scored"
	AuditModelTrained    AuditEventType = "model_trained"
	AuditModelPrediction AuditEventType = "model_prediction"
	AuditPolicyChanged   AuditEventType = "policy_changed"
	AuditModelPersisted  AuditEventType = "model_persisted"
	AuditModelRestored   AuditEventType = "model_restored"
)

// AuditSeverity buckets events by risk.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditEvent is one entry in the tenant audit trail. Emission is always
// fire-and-forget: audit failures never fail the operation that produced
// the event.
type AuditEvent struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId"`
	Type      AuditEventType `json:"type"`
	Severity  AuditSeverity  `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SeverityForScore maps a risk score to an audit severity:
// high at 0.8 and above, medium at 0.5 and above, low otherwise.
func SeverityForScore(score float64) AuditSeverity {
	switch {
	case score >= 0.8:
		return SeverityHigh
	case score >= 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
