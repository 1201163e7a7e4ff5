package anomaly

import (
	"fmt"
	"math"

	"github.com/TozatoRodrigo/detecta-ia/internal/domain"
)

// StandardScaler centers each column to zero mean and unit variance.
// Fitted parameters are exported for gob persistence.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// Fit learns per-column mean and standard deviation.
func (s *StandardScaler) Fit(data [][]float64) error {
	if len(data) == 0 {
		return fmt.Errorf("scaler fit on empty matrix: %w", domain.ErrInvalidInput)
	}
	cols := len(data[0])
	s.Mean = make([]float64, cols)
	s.Std = make([]float64, cols)

	n := float64(len(data))
	for _, row := range data {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range data {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
		// Constant columns pass through unscaled.
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	return nil
}

// Transform applies the fitted scaling to a matrix, returning a new matrix.
func (s *StandardScaler) Transform(data [][]float64) ([][]float64, error) {
	if s.Mean == nil {
		return nil, fmt.Errorf("scaler transform before fit: %w", domain.ErrUntrained)
	}
	out := make([][]float64, len(data))
	for i, row := range data {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("row %d has %d columns, scaler fitted with %d: %w",
				i, len(row), len(s.Mean), domain.ErrInvalidInput)
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits the scaler and returns the scaled training matrix.
func (s *StandardScaler) FitTransform(data [][]float64) ([][]float64, error) {
	if err := s.Fit(data); err != nil {
		return nil, err
	}
	return s.Transform(data)
}
