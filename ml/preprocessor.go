package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MedianImputer replaces NaN cells with per-column medians learned in Fit.
type MedianImputer struct {
	Medians []float64 `json:"medians"`
}

func (m *MedianImputer) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("imputer: empty X")
	}
	cols := len(X[0])
	m.Medians = make([]float64, cols)
	for j := 0; j < cols; j++ {
		values := make([]float64, 0, len(X))
		for i := range X {
			if !math.IsNaN(X[i][j]) {
				values = append(values, X[i][j])
			}
		}
		m.Medians[j] = median(values)
	}
	return nil
}

func (m *MedianImputer) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		if math.IsNaN(v) && j < len(m.Medians) {
			v = m.Medians[j]
		}
		out[j] = v
	}
	return out
}

// StandardScaler centres columns on the training mean and divides by the
// population standard deviation. Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("scaler: empty X")
	}
	cols := len(X[0])
	s.Mean = make([]float64, cols)
	s.Scale = make([]float64, cols)
	column := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i := range X {
			column[i] = X[i][j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return nil
}

func (s *StandardScaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// Preprocessor is median imputation followed by standard scaling. Both steps
// are fitted on the same rows.
type Preprocessor struct {
	Imputer MedianImputer  `json:"imputer"`
	Scaler  StandardScaler `json:"scaler"`
}

// Fit learns medians, then scales the imputed matrix.
func (p *Preprocessor) Fit(X [][]float64) error {
	if err := p.Imputer.Fit(X); err != nil {
		return err
	}
	imputed := make([][]float64, len(X))
	for i, row := range X {
		imputed[i] = p.Imputer.TransformRow(row)
	}
	return p.Scaler.Fit(imputed)
}

func (p *Preprocessor) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		transformed, err := p.TransformRow(row)
		if err != nil {
			return nil, err
		}
		out[i] = transformed
	}
	return out, nil
}

// TransformRow imputes and scales one raw row.
func (p *Preprocessor) TransformRow(row []float64) ([]float64, error) {
	if len(p.Scaler.Mean) == 0 {
		return nil, errors.New("preprocessor not fitted")
	}
	if len(row) != len(p.Scaler.Mean) {
		return nil, fmt.Errorf("preprocessor expects %d values, got %d", len(p.Scaler.Mean), len(row))
	}
	return p.Scaler.TransformRow(p.Imputer.TransformRow(row)), nil
}

func (p *Preprocessor) FitTransform(X [][]float64) ([][]float64, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// median of values; 0 for an all-missing column.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
