package anomaly

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
	"github.com/TozatoRodrigo/detecta-ia/internal/stats"
)

const (
	defaultNumTrees  = 200
	maxSubsampleSize = 256
	eulerGamma       = 0.5772156649015329
)

// IsolationForest detects global anomalies by how quickly random axis
// splits isolate a point. Raw scores are in (0,1) with higher meaning more
// anomalous. All fields are exported for gob persistence.
type IsolationForest struct {
	Trees         []*IsoNode
	NumTrees      int
	SubsampleSize int
	Contamination float64
	Seed          int64

	// Offset is the raw-score threshold fitted from the training data:
	// the (1 - contamination) quantile of training scores.
	Offset float64
}

// IsoNode is one node of an isolation tree. Leaves have nil children and
// carry the count of training points that reached them.
type IsoNode struct {
	SplitFeature int
	SplitValue   float64
	Left         *IsoNode
	Right        *IsoNode
	Size         int
}

// NewIsolationForest creates an unfitted forest with the given contamination
// rate and a fixed seed for reproducible training.
func NewIsolationForest(contamination float64, seed int64) *IsolationForest {
	return &IsolationForest{
		NumTrees:      defaultNumTrees,
		Contamination: contamination,
		Seed:          seed,
	}
}

// Fit builds the ensemble from the (scaled) training matrix.
func (f *IsolationForest) Fit(data [][]float64) error {
	if len(data) < 2 {
		return fmt.Errorf("isolation forest needs at least 2 samples, got %d: %w",
			len(data), domain.ErrInvalidInput)
	}

	f.SubsampleSize = len(data)
	if f.SubsampleSize > maxSubsampleSize {
		f.SubsampleSize = maxSubsampleSize
	}
	heightLimit := int(math.Ceil(math.Log2(float64(f.SubsampleSize))))

	rng := rand.New(rand.NewSource(f.Seed))
	f.Trees = make([]*IsoNode, f.NumTrees)
	for t := 0; t < f.NumTrees; t++ {
		sample := subsample(data, f.SubsampleSize, rng)
		f.Trees[t] = buildIsoTree(sample, 0, heightLimit, rng)
	}

	scores, err := f.Score(data)
	if err != nil {
		return err
	}
	f.Offset = stats.Quantile(scores, 1-f.Contamination)
	return nil
}

// Score returns the raw anomaly score per row.
func (f *IsolationForest) Score(data [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("isolation forest: %w", domain.ErrUntrained)
	}
	cn := avgPathLength(f.SubsampleSize)
	scores := make([]float64, len(data))
	for i, row := range data {
		var total float64
		for _, tree := range f.Trees {
			total += pathLength(tree, row, 0)
		}
		avg := total / float64(len(f.Trees))
		scores[i] = math.Pow(2, -avg/cn)
	}
	return scores, nil
}

// Threshold returns the fitted raw-score cutoff.
func (f *IsolationForest) Threshold() float64 {
	return f.Offset
}

func subsample(data [][]float64, size int, rng *rand.Rand) [][]float64 {
	if size >= len(data) {
		return data
	}
	perm := rng.Perm(len(data))
	out := make([][]float64, size)
	for i := 0; i < size; i++ {
		out[i] = data[perm[i]]
	}
	return out
}

func buildIsoTree(data [][]float64, depth, heightLimit int, rng *rand.Rand) *IsoNode {
	if len(data) <= 1 || depth >= heightLimit {
		return &IsoNode{SplitFeature: -1, Size: len(data)}
	}

	// Pick a random feature with spread; a sample where every column is
	// constant cannot be split further.
	cols := len(data[0])
	feature := -1
	var lo, hi float64
	for _, j := range rng.Perm(cols) {
		lo, hi = data[0][j], data[0][j]
		for _, row := range data {
			if row[j] < lo {
				lo = row[j]
			}
			if row[j] > hi {
				hi = row[j]
			}
		}
		if hi > lo {
			feature = j
			break
		}
	}
	if feature == -1 {
		return &IsoNode{SplitFeature: -1, Size: len(data)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &IsoNode{
		SplitFeature: feature,
		SplitValue:   split,
		Left:         buildIsoTree(left, depth+1, heightLimit, rng),
		Right:        buildIsoTree(right, depth+1, heightLimit, rng),
	}
}

func pathLength(node *IsoNode, row []float64, depth int) float64 {
	if node.SplitFeature == -1 {
		return float64(depth) + avgPathLength(node.Size)
	}
	if row[node.SplitFeature] < node.SplitValue {
		return pathLength(node.Left, row, depth+1)
	}
	return pathLength(node.Right, row, depth+1)
}

// avgPathLength is the expected path length of an unsuccessful BST search,
// the c(n) normalizer from the isolation forest paper.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}
