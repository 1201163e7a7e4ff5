package rules

import (
	"fmt"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
)

// Heuristic thresholds. These mirror common receivables fraud screening
// limits and are referenced by the builtin rule expressions.
const (
	HighValueThreshold   = 1_000_000.0
	LowValueThreshold    = 100.0
	MinDaysToMaturity    = 7.0
	MaxDaysToMaturity    = 365.0
	RoundNumberThreshold = 10_000.0
)

// Reason texts emitted by the builtin rules. These strings are part of the
// API contract; downstream consumers match on them.
const (
	ReasonNoFiscalDoc  = "no linked fiscal document"
	ReasonHighValue    = "value too high (over 1M)"
	ReasonLowValue     = "value too low (possible test transaction)"
	ReasonShortTerm    = "maturity term too short (<7 days)"
	ReasonLongTerm     = "maturity term too long (>1 year)"
	ReasonInvalidDates = "invalid or inconsistent dates"
	ReasonWeekendIssue = "issued on a weekend"
	ReasonRoundNumber  = "round-number amount (suspicious pattern)"
	ReasonModelAnomaly = "atypical pattern detected by model"
)

// BuiltinRules returns the fixed heuristics, in evaluation order. The order
// determines the order of reasons in a verdict and must not change.
//
// Term rules are guarded by dates_valid so that a record with unparseable or
// inverted dates reports only the invalid-dates reason.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "builtin-no-fiscal",
			Name:        "Missing fiscal document",
			Description: "Receivable has no linked fiscal document",
			Expression:  "!fiscal_linked",
			Reason:      ReasonNoFiscalDoc,
			Builtin:     true,
			Enabled:     true,
		},
		{
			ID:          "builtin-high-value",
			Name:        "High value",
			Description: "Amount above the high-value limit",
			Expression:  fmt.Sprintf("amount > %.1f", HighValueThreshold),
			Reason:      ReasonHighValue,
			Builtin:     true,
			Enabled:     true,
		},
		{
			ID:          "builtin-low-value",
			Name:        "Low value",
			Description: "Amount below the test-transaction limit",
			Expression:  fmt.Sprintf("amount < %.1f", LowValueThreshold),
			Reason:      ReasonLowValue,
			Builtin:     true,
			Enabled:     true,
		},
		{
			ID:          "builtin-short-term",
			Name:        "Short maturity term",
			Description: "Maturity less than a week after issue",
			Expression:  fmt.Sprintf("dates_valid && days_to_maturity < %.1f", MinDaysToMaturity),
			Reason:      ReasonShortTerm,
			Builtin:     true,
			Enabled:     true,
		},
		{
			ID:          "builtin-long-term",
			Name:        "Long maturity term",
			Description: "Maturity more than a year after issue",
			Expression:  fmt.Sprintf("dates_valid && days_to_maturity > %.1f", MaxDaysToMaturity),
			Reason:      ReasonLongTerm,
			Builtin:     true,
			Enabled:     true,
		},
		{
			ID:          "builtin-invalid-dates",
			Name:        "Invalid dates",
			Description: "Unparseable dates or maturity before issue",
			Expression:  "!dates_valid",
			Reason:      ReasonInvalidDates,
			Builtin:     true,
			Enabled:     true,
		},
		{
			ID:          "builtin-weekend",
			Name:        "Weekend issue",
			Description: "Issued on a Saturday or Sunday",
			Expression:  "weekend_issue",
			Reason:      ReasonWeekendIssue,
			Builtin:     true,
			Enabled:     true,
		},
		{
			ID:          "builtin-round-number",
			Name:        "Round-number amount",
			Description: "Amount is a large round multiple of 1000",
			Expression:  "round_amount",
			Reason:      ReasonRoundNumber,
			Builtin:     true,
			Enabled:     true,
		},
	}
}
