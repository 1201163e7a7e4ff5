package domain

// RuleConfig defines a fraud detection heuristic. Builtin rules ship with the
// engine in a fixed order; tenant rules are stored in the repository and
// evaluated after the builtins in load order.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL expression over the record activation variables.
	// It must evaluate to bool; true means the rule fires.
	Expression string `json:"expression"`

	// Reason is the human-readable reason appended when the rule fires.
	Reason string `json:"reason"`

	// Builtin marks the fixed heuristics that cannot be removed or reordered.
	Builtin bool `json:"builtin"`

	Enabled bool `json:"enabled"`
}

// RuleResult is the outcome of one rule against one record.
type RuleResult struct {
	RuleID       string `json:"ruleId"`
	ReceivableID string `json:"receivableId"`
	Fired        bool   `json:"fired"`
	Reason       string `json:"reason,omitempty"`
	Err          string `json:"err,omitempty"`
}

// RuleVerdict is the Rule Engine output for one record: deterministic,
// side-effect free, reasons in fixed evaluation order without duplicates.
type RuleVerdict struct {
	ReceivableID string       `json:"receivableId"`
	Suspicious   bool         `json:"suspicious"`
	Reasons      []string     `json:"reasons"`
	Results      []RuleResult `json:"results,omitempty"`
}
