// Package features turns receivable batches into numeric matrices for the
// anomaly estimators. The schema below is the single source of truth for
// feature names, order, and computation.
package features

import (
	"math"
	"time"
)

// FeatureSpec declares one column of the feature matrix.
type FeatureSpec struct {
	// Name is the stable column identifier.
	Name string

	// Compute produces the raw value for one record. It may return NaN
	// when the underlying data is missing; NaN cells are median-imputed
	// after the whole batch is computed.
	Compute func(r *row, s *batchStats) float64
}

// Schema returns the ordered feature columns. Order is part of the model
// contract: persisted models are only valid against the schema they were
// trained with.
func Schema() []FeatureSpec {
	return schema
}

// Names returns the column names in schema order.
func Names() []string {
	names := make([]string, len(schema))
	for i, spec := range schema {
		names[i] = spec.Name
	}
	return names
}

// Count returns the number of columns.
func Count() int {
	return len(schema)
}

var schema = []FeatureSpec{
	{Name: "amount", Compute: func(r *row, s *batchStats) float64 {
		return r.amount
	}},
	{Name: "amount_log", Compute: func(r *row, s *batchStats) float64 {
		return math.Log1p(r.amount)
	}},
	{Name: "amount_zscore", Compute: func(r *row, s *batchStats) float64 {
		if s.amountStd == 0 {
			return 0
		}
		return (r.amount - s.amountMean) / s.amountStd
	}},
	{Name: "days_to_maturity", Compute: func(r *row, s *batchStats) float64 {
		return r.days
	}},
	{Name: "weekend_issue", Compute: func(r *row, s *batchStats) float64 {
		if !r.issueValid {
			return math.NaN()
		}
		wd := r.issue.Weekday()
		return boolTo(wd == time.Saturday || wd == time.Sunday)
	}},
	{Name: "issue_hour", Compute: func(r *row, s *batchStats) float64 {
		if !r.issueValid {
			return math.NaN()
		}
		return float64(r.issue.Hour())
	}},
	{Name: "issue_month", Compute: func(r *row, s *batchStats) float64 {
		if !r.issueValid {
			return math.NaN()
		}
		return float64(r.issue.Month())
	}},
	{Name: "month_end", Compute: func(r *row, s *batchStats) float64 {
		if !r.issueValid {
			return math.NaN()
		}
		return boolTo(r.issue.Day() >= 25)
	}},
	{Name: "drawer_frequency", Compute: func(r *row, s *batchStats) float64 {
		return s.drawerFreq[r.rec.Drawer]
	}},
	{Name: "debtor_frequency", Compute: func(r *row, s *batchStats) float64 {
		return s.debtorFreq[r.rec.Debtor]
	}},
	{Name: "doc_type_frequency", Compute: func(r *row, s *batchStats) float64 {
		return s.docTypeFreq[r.rec.DocType]
	}},
	{Name: "drawer_amount_mean", Compute: func(r *row, s *batchStats) float64 {
		return s.drawerOrZero(r.rec.Drawer).AmountMean
	}},
	{Name: "drawer_amount_std", Compute: func(r *row, s *batchStats) float64 {
		return s.drawerOrZero(r.rec.Drawer).AmountStd
	}},
	{Name: "drawer_count", Compute: func(r *row, s *batchStats) float64 {
		return float64(s.drawerOrZero(r.rec.Drawer).Count)
	}},
	{Name: "drawer_days_mean", Compute: func(r *row, s *batchStats) float64 {
		return s.drawerOrZero(r.rec.Drawer).DaysMean
	}},
	{Name: "drawer_fiscal_rate", Compute: func(r *row, s *batchStats) float64 {
		return s.drawerOrZero(r.rec.Drawer).FiscalRate
	}},
	{Name: "amount_per_day", Compute: func(r *row, s *batchStats) float64 {
		// days of exactly -1 would divide by zero; treat it like a
		// missing value so it gets median-imputed instead of going Inf.
		if math.IsNaN(r.days) || r.days+1 == 0 {
			return math.NaN()
		}
		return r.amount / (r.days + 1)
	}},
	{Name: "drawer_deviation", Compute: func(r *row, s *batchStats) float64 {
		return math.Abs(r.amount - s.drawerOrZero(r.rec.Drawer).AmountMean)
	}},
	{Name: "high_value_flag", Compute: func(r *row, s *batchStats) float64 {
		return boolTo(r.amount > s.amountP95)
	}},
	{Name: "short_term_flag", Compute: func(r *row, s *batchStats) float64 {
		if math.IsNaN(r.days) {
			return math.NaN()
		}
		return boolTo(r.days < 7)
	}},
	{Name: "no_fiscal_flag", Compute: func(r *row, s *batchStats) float64 {
		return boolTo(!r.rec.FiscalLinked)
	}},
}

func boolTo(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
