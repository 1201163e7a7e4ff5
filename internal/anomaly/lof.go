package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/stats"
)

const (
	defaultLOFNeighbors = 20

	// lrdCap stands in for an infinite local reachability density when a
	// point coincides with all of its neighbors.
	lrdCap = 1e9
)

// LocalOutlierFactor flags points whose local density is low relative to
// their neighbors. Works in novelty mode: fitted once on training data,
// then scores unseen points against it. Fields are exported for gob
// persistence.
type LocalOutlierFactor struct {
	K             int
	Contamination float64

	// Fitted state.
	Train  [][]float64
	KDists []float64
	LRDs   []float64
	Offset float64
}

// NewLocalOutlierFactor creates an unfitted LOF estimator.
func NewLocalOutlierFactor(contamination float64) *LocalOutlierFactor {
	return &LocalOutlierFactor{Contamination: contamination}
}

// Fit memorizes the training set and precomputes neighborhood densities.
// The neighborhood size adapts to small batches: k = min(20, n/2).
func (l *LocalOutlierFactor) Fit(data [][]float64) error {
	n := len(data)
	k := defaultLOFNeighbors
	if n/2 < k {
		k = n / 2
	}
	if k < 1 {
		return fmt.Errorf("local outlier factor needs at least 2 samples, got %d: %w",
			n, domain.ErrInvalidInput)
	}
	l.K = k

	l.Train = make([][]float64, n)
	for i, row := range data {
		l.Train[i] = append([]float64(nil), row...)
	}

	// k-distance and neighbor sets within the training data, self excluded.
	neighbors := make([][]int, n)
	l.KDists = make([]float64, n)
	for i := 0; i < n; i++ {
		idx, dists := l.nearest(l.Train[i], i)
		neighbors[i] = idx
		l.KDists[i] = dists[len(dists)-1]
	}

	l.LRDs = make([]float64, n)
	for i := 0; i < n; i++ {
		l.LRDs[i] = l.lrd(l.Train[i], neighbors[i])
	}

	lofs := make([]float64, n)
	for i := 0; i < n; i++ {
		lofs[i] = l.lof(l.LRDs[i], neighbors[i])
	}
	l.Offset = stats.Quantile(lofs, 1-l.Contamination)
	return nil
}

// Score computes the outlier factor of each row against the training set.
func (l *LocalOutlierFactor) Score(data [][]float64) ([]float64, error) {
	if l.Train == nil {
		return nil, fmt.Errorf("local outlier factor: %w", domain.ErrUntrained)
	}
	scores := make([]float64, len(data))
	for i, row := range data {
		idx, _ := l.nearest(row, -1)
		lrd := l.lrd(row, idx)
		scores[i] = l.lof(lrd, idx)
	}
	return scores, nil
}

// Threshold returns the fitted raw-score cutoff.
func (l *LocalOutlierFactor) Threshold() float64 {
	return l.Offset
}

// nearest returns the indices and distances of the k nearest training
// points to row, skipping the training index skip (use -1 for none).
func (l *LocalOutlierFactor) nearest(row []float64, skip int) ([]int, []float64) {
	type pair struct {
		idx  int
		dist float64
	}
	pairs := make([]pair, 0, len(l.Train))
	for i, train := range l.Train {
		if i == skip {
			continue
		}
		pairs = append(pairs, pair{i, euclidean(row, train)})
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].dist != pairs[b].dist {
			return pairs[a].dist < pairs[b].dist
		}
		return pairs[a].idx < pairs[b].idx
	})

	k := l.K
	if k > len(pairs) {
		k = len(pairs)
	}
	idx := make([]int, k)
	dists := make([]float64, k)
	for i := 0; i < k; i++ {
		idx[i] = pairs[i].idx
		dists[i] = pairs[i].dist
	}
	return idx, dists
}

// lrd is the local reachability density of row given its neighbor indices.
func (l *LocalOutlierFactor) lrd(row []float64, neighbors []int) float64 {
	var sum float64
	for _, nb := range neighbors {
		reach := euclidean(row, l.Train[nb])
		if l.KDists[nb] > reach {
			reach = l.KDists[nb]
		}
		sum += reach
	}
	if sum == 0 {
		return lrdCap
	}
	return float64(len(neighbors)) / sum
}

// lof is the outlier factor: mean neighbor density over own density.
func (l *LocalOutlierFactor) lof(lrd float64, neighbors []int) float64 {
	if len(neighbors) == 0 {
		return 1
	}
	var sum float64
	for _, nb := range neighbors {
		sum += l.LRDs[nb]
	}
	return sum / float64(len(neighbors)) / lrd
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
