package ml

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestTrainer(t *testing.T) *Trainer {
	t.Helper()
	config := DefaultTrainerConfig()
	config.ModelPath = filepath.Join(t.TempDir(), "final_ev_model.json")
	config.QuickGrid = []ForestParams{testParams()}
	config.FullGrid = []ForestParams{
		{NEstimators: 10, MaxDepth: 4, MinSamplesSplit: 2, MinSamplesLeaf: 1},
		{NEstimators: 10, MaxDepth: 8, MinSamplesSplit: 2, MinSamplesLeaf: 1},
	}
	return NewTrainer(config, nil)
}

func TestTrainAndSave(t *testing.T) {
	trainer := newTestTrainer(t)
	path := writeDatasetCSV(t, syntheticDataset(200, 5))

	result, err := trainer.TrainAndSave(context.Background(), path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ArtifactPath != trainer.ModelPath() {
		t.Fatalf("unexpected artifact path %s", result.ArtifactPath)
	}
	if result.TrainRows != 160 || result.TestRows != 40 {
		t.Fatalf("expected 160/40 split, got %d/%d", result.TrainRows, result.TestRows)
	}
	if result.Metrics.R2 < 0.5 {
		t.Fatalf("expected a useful model, r2=%f", result.Metrics.R2)
	}
	if _, err := os.Stat(result.ArtifactPath); err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	loaded, err := LoadPipeline(result.ArtifactPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Metrics != result.Metrics {
		t.Fatalf("metrics not persisted: %+v vs %+v", loaded.Metrics, result.Metrics)
	}
}

func TestTrainDeterministic(t *testing.T) {
	dataset := syntheticDataset(120, 8)
	row := sampleRow()

	var predictions []float64
	for i := 0; i < 2; i++ {
		result, err := newTestTrainer(t).Train(context.Background(), dataset, true)
		if err != nil {
			t.Fatalf("train: %v", err)
		}
		value, err := result.Pipeline.Predict(row)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		predictions = append(predictions, value)
	}
	if predictions[0] != predictions[1] {
		t.Fatalf("training is not deterministic: %f vs %f", predictions[0], predictions[1])
	}
}

func TestTrainFullGridSearch(t *testing.T) {
	result, err := newTestTrainer(t).Train(context.Background(), syntheticDataset(90, 4), false)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if math.IsNaN(result.CVScore) {
		t.Fatal("expected a cross-validated score for a multi-candidate grid")
	}
	if result.Params.NEstimators != 10 {
		t.Fatalf("expected a grid candidate, got %+v", result.Params)
	}
}

func TestTrainCancelledDuringSearch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestTrainer(t).Train(ctx, syntheticDataset(60, 4), false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTrainAndSaveMissingTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ev.csv")
	if err := os.WriteFile(path, []byte(strings.Join(FeatureNames(), ",")+"\n1,2,3,4,5,6,7,8,9\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	trainer := newTestTrainer(t)
	_, err := trainer.TrainAndSave(context.Background(), path, true)
	var dataErr *DataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("expected DataError, got %v", err)
	}
	if _, statErr := os.Stat(trainer.ModelPath()); statErr == nil {
		t.Fatal("no artifact should be written on failure")
	}
}

func TestTrainAndSaveCustomTarget(t *testing.T) {
	config := DefaultTrainerConfig()
	config.ModelPath = filepath.Join(t.TempDir(), "model.json")
	config.Target = "range"
	config.QuickGrid = []ForestParams{testParams()}
	trainer := NewTrainer(config, nil)

	path := writeDatasetCSVWithTarget(t, syntheticDataset(100, 6), "range")
	result, err := trainer.TrainAndSave(context.Background(), path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Pipeline.Target != "range" {
		t.Fatalf("expected target range, got %q", result.Pipeline.Target)
	}

	_, err = newTestTrainer(t).TrainAndSave(context.Background(), path, true)
	var dataErr *DataError
	if !errors.As(err, &dataErr) || !strings.Contains(err.Error(), Target) {
		t.Fatalf("default trainer should not find %s: %v", Target, err)
	}
}

func TestNewTrainerKeepsZeroSeed(t *testing.T) {
	config := DefaultTrainerConfig()
	config.Seed = 0
	if seed := NewTrainer(config, nil).config.Seed; seed != 0 {
		t.Fatalf("expected seed 0, got %d", seed)
	}
	if target := NewTrainer(TrainerConfig{}, nil).config.Target; target != Target {
		t.Fatalf("expected default target %s, got %q", Target, target)
	}
}
