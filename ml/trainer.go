package ml

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

// TrainerConfig controls where the artifact goes and how the data is split.
// Seed is used as given, zero included.
type TrainerConfig struct {
	ModelPath string
	// Target is the CSV column to predict. Empty means range_km.
	Target    string
	Seed      int64
	TestRatio float64
	CVFolds   int
	// Grids override QuickGrid/FullGrid when set.
	QuickGrid []ForestParams
	FullGrid  []ForestParams
}

// DefaultTrainerConfig uses seed 42, an 80/20 split and 3 folds.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		ModelPath: "models/final_ev_model.json",
		Target:    Target,
		Seed:      42,
		TestRatio: 0.2,
		CVFolds:   3,
	}
}

// TrainResult describes one completed training run.
type TrainResult struct {
	ArtifactPath string
	Pipeline     *Pipeline
	Metrics      Metrics
	Params       ForestParams
	CVScore      float64
	Quick        bool
	TrainRows    int
	TestRows     int
	DroppedRows  int
	Duration     time.Duration
}

// Trainer fits and saves pipelines.
type Trainer struct {
	config TrainerConfig
	logger *zap.Logger
}

// NewTrainer fills an empty Target and an out of range TestRatio or CVFolds
// with the defaults.
func NewTrainer(config TrainerConfig, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Target == "" {
		config.Target = Target
	}
	if config.TestRatio <= 0 || config.TestRatio >= 1 {
		config.TestRatio = 0.2
	}
	if config.CVFolds < 2 {
		config.CVFolds = 3
	}
	return &Trainer{config: config, logger: logger}
}

func (t *Trainer) ModelPath() string {
	return t.config.ModelPath
}

// TrainAndSave loads the CSV at datasetPath, fits a pipeline and replaces the
// artifact at the configured model path. Metrics are informational only.
func (t *Trainer) TrainAndSave(ctx context.Context, datasetPath string, quick bool) (*TrainResult, error) {
	if t.config.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	t.logger.Info("loading dataset", zap.String("path", datasetPath))
	dataset, err := LoadDataset(datasetPath, &DatasetOptions{
		Features: FeatureNames(),
		Target:   t.config.Target,
	})
	if err != nil {
		return nil, err
	}

	result, err := t.Train(ctx, dataset, quick)
	if err != nil {
		return nil, err
	}
	if err := SavePipeline(t.config.ModelPath, result.Pipeline); err != nil {
		return nil, err
	}
	result.ArtifactPath = t.config.ModelPath
	t.logger.Info("model saved",
		zap.String("path", t.config.ModelPath),
		zap.String("version", result.Pipeline.Version))
	return result, nil
}

// Train splits first and fits every statistic on the training part only.
func (t *Trainer) Train(ctx context.Context, dataset *Dataset, quick bool) (*TrainResult, error) {
	start := time.Now()
	trainIdx, testIdx := TrainTestSplit(dataset.Len(), t.config.TestRatio, t.config.Seed)
	train := dataset.Subset(trainIdx)
	test := dataset.Subset(testIdx)
	t.logger.Info("dataset split",
		zap.Strings("features", dataset.Features),
		zap.Int("train_rows", train.Len()),
		zap.Int("test_rows", test.Len()),
		zap.Int("dropped_rows", dataset.DroppedRows))

	grid := t.grid(quick)
	search, err := GridSearch(ctx, train, grid, t.config.CVFolds, t.config.Seed)
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.Stringer("params", search.Params), zap.Int("candidates", len(grid))}
	if !math.IsNaN(search.Score) {
		fields = append(fields, zap.Float64("cv_r2", search.Score))
	}
	t.logger.Info("training model", fields...)

	pipeline, err := FitPipeline(train, search.Params, t.config.Seed)
	if err != nil {
		return nil, err
	}
	pipeline.TestRows = test.Len()

	if test.Len() > 0 {
		predicted, err := pipeline.PredictBatch(test.X)
		if err != nil {
			return nil, err
		}
		metrics, err := Evaluate(test.Y, predicted)
		if err != nil {
			return nil, err
		}
		pipeline.Metrics = metrics
		t.logger.Info("evaluation",
			zap.Float64("r2", metrics.R2),
			zap.Float64("mae", metrics.MAE),
			zap.Float64("rmse", metrics.RMSE))
	} else {
		t.logger.Warn("no held-out rows, skipping evaluation")
	}

	return &TrainResult{
		Pipeline:    pipeline,
		Metrics:     pipeline.Metrics,
		Params:      search.Params,
		CVScore:     search.Score,
		Quick:       quick,
		TrainRows:   train.Len(),
		TestRows:    test.Len(),
		DroppedRows: dataset.DroppedRows,
		Duration:    time.Since(start),
	}, nil
}

func (t *Trainer) grid(quick bool) []ForestParams {
	if quick {
		if len(t.config.QuickGrid) > 0 {
			return t.config.QuickGrid
		}
		return QuickGrid()
	}
	if len(t.config.FullGrid) > 0 {
		return t.config.FullGrid
	}
	return FullGrid()
}
