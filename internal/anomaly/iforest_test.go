package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolationForestOutlierScoresHigher(t *testing.T) {
	data := clusterWithOutliers(99, 1, 3)

	forest := NewIsolationForest(0.1, trainSeed)
	require.NoError(t, forest.Fit(data))

	scores, err := forest.Score(data)
	require.NoError(t, err)

	var clusterMax float64
	for _, s := range scores[:99] {
		if s > clusterMax {
			clusterMax = s
		}
	}
	assert.Greater(t, scores[99], clusterMax, "outlier must out-score every cluster point")
	assert.Greater(t, scores[99], forest.Threshold())
}

func TestIsolationForestDeterministicWithSeed(t *testing.T) {
	data := clusterWithOutliers(48, 2, 3)

	a := NewIsolationForest(0.1, trainSeed)
	require.NoError(t, a.Fit(data))
	b := NewIsolationForest(0.1, trainSeed)
	require.NoError(t, b.Fit(data))

	scoresA, err := a.Score(data)
	require.NoError(t, err)
	scoresB, err := b.Score(data)
	require.NoError(t, err)
	assert.Equal(t, scoresA, scoresB)
}

func TestIsolationForestConstantData(t *testing.T) {
	data := make([][]float64, 10)
	for i := range data {
		data[i] = []float64{1, 1, 1}
	}

	forest := NewIsolationForest(0.1, trainSeed)
	require.NoError(t, forest.Fit(data))

	scores, err := forest.Score(data)
	require.NoError(t, err)
	for _, s := range scores {
		assert.Equal(t, scores[0], s)
	}
}

func TestIsolationForestScoreBeforeFit(t *testing.T) {
	forest := NewIsolationForest(0.1, trainSeed)
	_, err := forest.Score([][]float64{{1, 2}})
	assert.Error(t, err)
}

func TestAvgPathLength(t *testing.T) {
	assert.Zero(t, avgPathLength(0))
	assert.Zero(t, avgPathLength(1))
	assert.InDelta(t, 0.15, avgPathLength(2), 0.01)
	assert.Greater(t, avgPathLength(256), avgPathLength(16))
}
