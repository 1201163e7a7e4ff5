// Package anomaly implements the per-tenant unsupervised estimators and the
// manager that owns their lifecycle.
package anomaly

// Detector is the contract shared by the estimators. Raw scores increase
// with anomalousness; Threshold is the fitted cutoff above which a point is
// flagged.
type Detector interface {
	Fit(data [][]float64) error
	Score(data [][]float64) ([]float64, error)
	Threshold() float64
}
