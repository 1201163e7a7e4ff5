package features

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/stats"
)

// BaselineProvider supplies cross-batch drawer history. When a tenant's
// policy enables the stable baseline, drawer aggregates come from here
// instead of being recomputed from the batch at hand.
type BaselineProvider interface {
	DrawerAggregates(ctx context.Context, tenantID string) ([]*domain.DrawerAggregate, error)
}

// Engineer computes the feature matrix for a batch of receivables.
type Engineer struct {
	baseline BaselineProvider
	logger   *slog.Logger
}

// NewEngineer creates a feature engineer. baseline may be nil; the engineer
// then always uses batch-relative drawer aggregates.
func NewEngineer(baseline BaselineProvider, logger *slog.Logger) *Engineer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engineer{
		baseline: baseline,
		logger:   logger.With("component", "features"),
	}
}

// Matrix computes one feature vector per receivable, in input order.
// The same batch always produces the same matrix. Missing values from
// unparseable dates are imputed with the per-column median.
func (e *Engineer) Matrix(ctx context.Context, tenantID string, batch []*domain.Receivable, stable bool) ([][]float64, error) {
	if len(batch) == 0 {
		return [][]float64{}, nil
	}

	rows := make([]*row, len(batch))
	for i, rec := range batch {
		rows[i] = newRow(rec)
	}

	bs := computeBatchStats(rows)
	if stable && e.baseline != nil {
		e.applyBaseline(ctx, tenantID, bs)
	}

	matrix := make([][]float64, len(rows))
	for i, r := range rows {
		vec := make([]float64, len(schema))
		for j, spec := range schema {
			vec[j] = spec.Compute(r, bs)
		}
		matrix[i] = vec
	}

	imputeMedians(matrix)
	return matrix, nil
}

// applyBaseline overlays persisted drawer history onto the batch stats.
// Failures fall back to batch-relative aggregates.
func (e *Engineer) applyBaseline(ctx context.Context, tenantID string, bs *batchStats) {
	aggs, err := e.baseline.DrawerAggregates(ctx, tenantID)
	if err != nil {
		e.logger.Warn("baseline unavailable, using batch aggregates",
			"tenant_id", tenantID, "error", err)
		return
	}
	for _, agg := range aggs {
		bs.drawer[agg.Drawer] = agg
	}
}

// DaysToMaturity returns the maturity term in days. ok is false when either
// date fails to parse.
func DaysToMaturity(r *domain.Receivable) (days float64, ok bool) {
	issue, err := domain.ParseDate(r.IssueDate)
	if err != nil {
		return 0, false
	}
	maturity, err := domain.ParseDate(r.MaturityDate)
	if err != nil {
		return 0, false
	}
	return maturity.Sub(issue).Hours() / 24, true
}

// row is the parsed intermediate form of one receivable.
type row struct {
	rec        *domain.Receivable
	amount     float64
	days       float64 // NaN when either date is unparseable
	issue      time.Time
	issueValid bool
}

func newRow(rec *domain.Receivable) *row {
	r := &row{rec: rec, amount: rec.Amount, days: math.NaN()}
	if issue, err := domain.ParseDate(rec.IssueDate); err == nil {
		r.issue = issue
		r.issueValid = true
	}
	if days, ok := DaysToMaturity(rec); ok {
		r.days = days
	}
	return r
}

// batchStats holds batch-level aggregates shared by all feature columns.
type batchStats struct {
	amountMean float64
	amountStd  float64
	amountP95  float64

	drawerFreq  map[string]float64
	debtorFreq  map[string]float64
	docTypeFreq map[string]float64

	drawer map[string]*domain.DrawerAggregate
}

var zeroDrawer = &domain.DrawerAggregate{}

func (s *batchStats) drawerOrZero(name string) *domain.DrawerAggregate {
	if agg, ok := s.drawer[name]; ok {
		return agg
	}
	return zeroDrawer
}

func computeBatchStats(rows []*row) *batchStats {
	n := float64(len(rows))
	bs := &batchStats{
		drawerFreq:  make(map[string]float64),
		debtorFreq:  make(map[string]float64),
		docTypeFreq: make(map[string]float64),
		drawer:      make(map[string]*domain.DrawerAggregate),
	}

	amounts := make([]float64, len(rows))
	for i, r := range rows {
		amounts[i] = r.amount
		bs.amountMean += r.amount
		bs.drawerFreq[r.rec.Drawer]++
		bs.debtorFreq[r.rec.Debtor]++
		bs.docTypeFreq[r.rec.DocType]++
	}
	bs.amountMean /= n

	var variance float64
	for _, r := range rows {
		d := r.amount - bs.amountMean
		variance += d * d
	}
	if len(rows) > 1 {
		bs.amountStd = math.Sqrt(variance / (n - 1))
	}
	bs.amountP95 = stats.Quantile(amounts, 0.95)

	for k := range bs.drawerFreq {
		bs.drawerFreq[k] /= n
	}
	for k := range bs.debtorFreq {
		bs.debtorFreq[k] /= n
	}
	for k := range bs.docTypeFreq {
		bs.docTypeFreq[k] /= n
	}

	bs.drawer = drawerAggregatesFromBatch(rows)
	return bs
}

// drawerAggregatesFromBatch computes per-drawer history from the batch
// itself. Used when no stable baseline is configured.
func drawerAggregatesFromBatch(rows []*row) map[string]*domain.DrawerAggregate {
	groups := make(map[string][]*row)
	for _, r := range rows {
		groups[r.rec.Drawer] = append(groups[r.rec.Drawer], r)
	}

	out := make(map[string]*domain.DrawerAggregate, len(groups))
	for drawer, members := range groups {
		agg := &domain.DrawerAggregate{Drawer: drawer, Count: len(members)}

		var daysSum float64
		var daysN int
		for _, r := range members {
			agg.AmountMean += r.amount
			if r.rec.FiscalLinked {
				agg.FiscalRate++
			}
			if !math.IsNaN(r.days) {
				daysSum += r.days
				daysN++
			}
		}
		m := float64(len(members))
		agg.AmountMean /= m
		agg.FiscalRate /= m
		if daysN > 0 {
			agg.DaysMean = daysSum / float64(daysN)
		}

		if len(members) > 1 {
			var variance float64
			for _, r := range members {
				d := r.amount - agg.AmountMean
				variance += d * d
			}
			agg.AmountStd = math.Sqrt(variance / (m - 1))
		}
		out[drawer] = agg
	}
	return out
}

// imputeMedians replaces non-finite cells (NaN or Inf) with the column
// median of the finite values. Columns with no finite values become zero.
// The estimators require a fully finite matrix.
func imputeMedians(matrix [][]float64) {
	if len(matrix) == 0 {
		return
	}
	cols := len(matrix[0])
	for j := 0; j < cols; j++ {
		var finite []float64
		for _, vec := range matrix {
			if isFinite(vec[j]) {
				finite = append(finite, vec[j])
			}
		}
		if len(finite) == len(matrix) {
			continue
		}
		med := 0.0
		if len(finite) > 0 {
			med = stats.Median(finite)
		}
		for _, vec := range matrix {
			if !isFinite(vec[j]) {
				vec[j] = med
			}
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
