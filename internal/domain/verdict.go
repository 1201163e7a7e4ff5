package domain

import (
	"time"
)

// DetectionMethod tags which detector contributed to a verdict.
type DetectionMethod string

const (
	MethodNone  DetectionMethod = ""
	MethodRules DetectionMethod = "rules"
	MethodModel DetectionMethod = "model"
	MethodBoth  DetectionMethod = "both"
)

// Verdict is the scoring outcome for a single receivable. Reasons preserve
// rule-evaluation order; Score is in [0,1].
type Verdict struct {
	ReceivableID string          `json:"receivableId"`
	Suspicious   bool            `json:"suspicious"`
	Reasons      []string        `json:"reasons"`
	Score        float64         `json:"score"`
	ModelScore   float64         `json:"modelScore"`
	Method       DetectionMethod `json:"method"`
	RuleResults  []RuleResult    `json:"ruleResults,omitempty"`
}

// BatchResult is the full outcome of scoring one batch, verdicts in input
// order. ModelTrained reports whether lazy training ran during this call.
type BatchResult struct {
	BatchID      string       `json:"batchId"`
	TenantID     string       `json:"tenantId"`
	Verdicts     []*Verdict   `json:"verdicts"`
	ModelTrained bool         `json:"modelTrained"`
	ModelKind    ModelKind    `json:"modelKind,omitempty"`
	Summary      BatchSummary `json:"summary"`
}

// BatchSummary aggregates a batch result.
type BatchSummary struct {
	Total      int     `json:"total"`
	Suspicious int     `json:"suspicious"`
	Anomalies  int     `json:"anomalies"`
	AvgScore   float64 `json:"avgScore"`
	DurationMs int64   `json:"durationMs"`
}

// BatchRecord is the persisted row for a scored batch.
type BatchRecord struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId"`
	Total        int       `json:"total"`
	Suspicious   int       `json:"suspicious"`
	Anomalies    int       `json:"anomalies"`
	AvgScore     float64   `json:"avgScore"`
	ModelTrained bool      `json:"modelTrained"`
	ModelKind    ModelKind `json:"modelKind,omitempty"`
	DurationMs   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ScoredReceivable is a receivable joined with its persisted verdict.
type ScoredReceivable struct {
	Receivable
	BatchID        string          `json:"batchId"`
	Suspicious     bool            `json:"suspicious"`
	Reasons        []string        `json:"reasons"`
	Score          float64         `json:"score"`
	ModelScore     float64         `json:"modelScore"`
	Method         DetectionMethod `json:"method"`
	DaysToMaturity int             `json:"daysToMaturity"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// TenantStats summarizes a tenant's scored history.
type TenantStats struct {
	TotalReceivables int                     `json:"totalReceivables"`
	TotalSuspicious  int                     `json:"totalSuspicious"`
	TotalBatches     int                     `json:"totalBatches"`
	AvgScore         float64                 `json:"avgScore"`
	TotalAmount      float64                 `json:"totalAmount"`
	ByMethod         map[DetectionMethod]int `json:"byMethod"`
}

// DrawerAggregate holds per-drawer history used by the stable-baseline
// feature mode.
type DrawerAggregate struct {
	Drawer     string  `json:"drawer"`
	Count      int     `json:"count"`
	AmountMean float64 `json:"amountMean"`
	AmountStd  float64 `json:"amountStd"`
	DaysMean   float64 `json:"daysMean"`
	FiscalRate float64 `json:"fiscalRate"`
}
