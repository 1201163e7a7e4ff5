package domain

import "time"

// Sensitivity controls how aggressive model-based detection is. It maps to
// the contamination rate handed to the anomaly estimators.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// ModelKind identifies an anomaly estimator family.
type ModelKind string

const (
	// KindGlobal is the isolation-style ensemble (global anomalies).
	KindGlobal ModelKind = "global"

	// KindLocal is the neighbor-based outlier factor (local density).
	KindLocal ModelKind = "local"
)

// ModelKinds lists all supported kinds.
func ModelKinds() []ModelKind {
	return []ModelKind{KindGlobal, KindLocal}
}

// RiskPolicy is the resolved per-tenant scoring configuration. It is supplied
// to the orchestrator per request; callers may persist one per tenant and
// override it per batch.
type RiskPolicy struct {
	TenantID    string      `json:"tenantId"`
	Sensitivity Sensitivity `json:"sensitivity"`

	// Detection toggles
	RulesEnabled bool      `json:"rulesEnabled"`
	ModelEnabled bool      `json:"modelEnabled"`
	ModelKind    ModelKind `json:"modelKind"`

	// ScoreThreshold overrides the suspicious cutoff for model scores.
	// Zero means "use the model's own anomaly flag".
	ScoreThreshold float64 `json:"scoreThreshold,omitempty"`

	// StableBaseline switches drawer aggregates and score normalization
	// from batch-relative to the persisted cross-batch baseline.
	StableBaseline bool `json:"stableBaseline"`

	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Contamination maps the sensitivity level to the estimator contamination
// rate: low 0.05, medium 0.1, high 0.2.
func (p *RiskPolicy) Contamination() float64 {
	switch p.Sensitivity {
	case SensitivityLow:
		return 0.05
	case SensitivityHigh:
		return 0.2
	default:
		return 0.1
	}
}

// Kind returns the configured model kind, defaulting to global.
func (p *RiskPolicy) Kind() ModelKind {
	if p.ModelKind == "" {
		return KindGlobal
	}
	return p.ModelKind
}

// DefaultRiskPolicy returns the policy applied to tenants that never
// configured one: medium sensitivity, both detectors on, batch-relative
// baseline.
func DefaultRiskPolicy(tenantID string) *RiskPolicy {
	return &RiskPolicy{
		TenantID:     tenantID,
		Sensitivity:  SensitivityMedium,
		RulesEnabled: true,
		ModelEnabled: true,
		ModelKind:    KindGlobal,
	}
}

// ModelInfo is the registry metadata stored for a trained model.
type ModelInfo struct {
	TenantID      string    `json:"tenantId"`
	Kind          ModelKind `json:"kind"`
	Contamination float64   `json:"contamination"`
	Samples       int       `json:"samples"`
	TrainedAt     time.Time `json:"trainedAt"`
}
