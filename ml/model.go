package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RangePredictor predicts the driving range in km for one feature row.
type RangePredictor interface {
	Predict(ctx context.Context, row FeatureRow) (float64, error)
}

// Pipeline is the persisted artifact: the preprocessing fitted on the training
// split and the forest fitted on its output. Callers pass raw feature values;
// the pipeline applies its own transform.
type Pipeline struct {
	Version      string        `json:"version"`
	TrainedAt    time.Time     `json:"trained_at"`
	Features     []string      `json:"features"`
	Target       string        `json:"target"`
	Preprocessor *Preprocessor `json:"preprocessor"`
	Forest       *RandomForest `json:"forest"`
	Metrics      Metrics       `json:"metrics"`
	TrainRows    int           `json:"train_rows"`
	TestRows     int           `json:"test_rows"`
}

// FitPipeline fits every statistic on train only.
func FitPipeline(train *Dataset, params ForestParams, seed int64) (*Pipeline, error) {
	if train == nil || train.Len() == 0 {
		return nil, errors.New("training set is empty")
	}
	preprocessor := &Preprocessor{}
	transformed, err := preprocessor.FitTransform(train.X)
	if err != nil {
		return nil, err
	}
	forest := NewRandomForest(params, seed)
	if err := forest.Fit(transformed, train.Y); err != nil {
		return nil, err
	}
	target := train.Target
	if target == "" {
		target = Target
	}
	return &Pipeline{
		Version:      uuid.NewString(),
		TrainedAt:    time.Now().UTC(),
		Features:     append([]string(nil), train.Features...),
		Target:       target,
		Preprocessor: preprocessor,
		Forest:       forest,
		TrainRows:    train.Len(),
	}, nil
}

func (p *Pipeline) Predict(row FeatureRow) (float64, error) {
	vector, err := FeatureVector(row, p.Features)
	if err != nil {
		return 0, err
	}
	return p.PredictVector(vector)
}

// PredictVector takes raw values already in p.Features order.
func (p *Pipeline) PredictVector(vector []float64) (float64, error) {
	if p.Preprocessor == nil || p.Forest == nil {
		return 0, ErrNotFitted
	}
	if len(vector) != len(p.Features) {
		return 0, fmt.Errorf("expected %d features, got %d", len(p.Features), len(vector))
	}
	transformed, err := p.Preprocessor.TransformRow(vector)
	if err != nil {
		return 0, err
	}
	return p.Forest.Predict(transformed)
}

func (p *Pipeline) PredictBatch(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		value, err := p.PredictVector(row)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

// FeatureImportances keys the forest's importances by feature name.
func (p *Pipeline) FeatureImportances() map[string]float64 {
	out := make(map[string]float64, len(p.Features))
	if p.Forest == nil {
		return out
	}
	for i, name := range p.Features {
		if i < len(p.Forest.Importances) {
			out[name] = p.Forest.Importances[i]
		}
	}
	return out
}
