// Package serving owns the loaded pipeline for the lifetime of the process.
package serving

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"evrange/ml"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ErrRetrainInProgress is returned when a second retrain is requested while
// one is still running.
var ErrRetrainInProgress = errors.New("retrain already in progress")

// Trainer produces a new artifact at the service's model path.
type Trainer interface {
	TrainAndSave(ctx context.Context, datasetPath string, quick bool) (*ml.TrainResult, error)
}

// RunRecorder keeps a history of training runs.
type RunRecorder interface {
	RecordTraining(ctx context.Context, result *ml.TrainResult) error
}

// Config locates the artifact and the dataset used for auto-training.
type Config struct {
	ModelPath   string
	DatasetPath string
	// AutoTrain trains a quick model at startup when no artifact exists.
	AutoTrain bool
	CacheSize int
}

// Status is a snapshot of the loaded model.
type Status struct {
	Loaded      bool               `json:"loaded"`
	Version     string             `json:"version,omitempty"`
	TrainedAt   *time.Time         `json:"trained_at,omitempty"`
	Features    []string           `json:"features,omitempty"`
	Metrics     *ml.Metrics        `json:"metrics,omitempty"`
	Params      *ml.ForestParams   `json:"params,omitempty"`
	Importances map[string]float64 `json:"importances,omitempty"`
	TrainRows   int                `json:"train_rows,omitempty"`
	TestRows    int                `json:"test_rows,omitempty"`
	Retraining  bool               `json:"retraining"`
}

// ModelService serves predictions from the current artifact and swaps it out
// after a retrain. Only one retrain may run at a time.
type ModelService struct {
	config   Config
	trainer  Trainer
	recorder RunRecorder
	logger   *zap.Logger

	mu       sync.RWMutex
	pipeline *ml.Pipeline
	cache    *lru.Cache[string, float64]

	stateMu sync.Mutex
	retrain sync.Mutex
	running bool

	watchMu sync.Mutex
	watcher closer
}

type closer interface {
	Close() error
}

// NewModelService does not load anything. Call EnsureModel.
func NewModelService(config Config, trainer Trainer, recorder RunRecorder, logger *zap.Logger) (*ModelService, error) {
	if config.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, float64](config.CacheSize)
	if err != nil {
		return nil, err
	}
	return &ModelService{
		config:   config,
		trainer:  trainer,
		recorder: recorder,
		logger:   logger,
		cache:    cache,
	}, nil
}

// Load reads the artifact from disk. A missing artifact leaves the service
// unavailable and returns ml.ErrArtifactMissing.
func (s *ModelService) Load() error {
	pipeline, err := ml.LoadPipeline(s.config.ModelPath)
	if err != nil {
		if errors.Is(err, ml.ErrArtifactMissing) {
			s.logger.Warn("no model artifact found", zap.String("path", s.config.ModelPath))
		}
		return err
	}
	s.swap(pipeline)
	s.logger.Info("model loaded",
		zap.String("path", s.config.ModelPath),
		zap.String("version", pipeline.Version),
		zap.Time("trained_at", pipeline.TrainedAt))
	return nil
}

func (s *ModelService) swap(pipeline *ml.Pipeline) {
	s.mu.Lock()
	s.pipeline = pipeline
	s.mu.Unlock()
	s.cache.Purge()
}

// EnsureModel loads the artifact, training a quick one first when it is
// missing and AutoTrain is set.
func (s *ModelService) EnsureModel(ctx context.Context) error {
	err := s.Load()
	if !errors.Is(err, ml.ErrArtifactMissing) || !s.config.AutoTrain {
		return err
	}
	s.logger.Info("training model for the first time")
	_, err = s.Retrain(ctx, true)
	return err
}

func (s *ModelService) current() *ml.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipeline
}

// Available reports whether a pipeline is loaded.
func (s *ModelService) Available() bool {
	return s.current() != nil
}

// Predict implements ml.RangePredictor.
func (s *ModelService) Predict(ctx context.Context, row ml.FeatureRow) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	pipeline := s.current()
	if pipeline == nil {
		return 0, ml.ErrArtifactMissing
	}
	vector, err := ml.FeatureVector(row, pipeline.Features)
	if err != nil {
		return 0, err
	}
	key := cacheKey(pipeline.Version, vector)
	if value, ok := s.cache.Get(key); ok {
		return value, nil
	}
	value, err := pipeline.PredictVector(vector)
	if err != nil {
		return 0, fmt.Errorf("prediction failed: %w", err)
	}
	s.cache.Add(key, value)
	return value, nil
}

func cacheKey(version string, vector []float64) string {
	var b strings.Builder
	b.WriteString(version)
	for _, v := range vector {
		b.WriteByte('|')
		if math.IsNaN(v) {
			b.WriteString("nan")
			continue
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// Retrain runs the trainer, which replaces the artifact in place, and then
// reloads it. It does not wait for a retrain that is already running.
func (s *ModelService) Retrain(ctx context.Context, quick bool) (*ml.TrainResult, error) {
	if s.trainer == nil {
		return nil, errors.New("retraining is not configured")
	}
	if !s.retrain.TryLock() {
		return nil, ErrRetrainInProgress
	}
	defer s.retrain.Unlock()
	s.setRunning(true)
	defer s.setRunning(false)

	s.logger.Info("retrain started", zap.Bool("quick", quick), zap.String("dataset", s.config.DatasetPath))
	result, err := s.trainer.TrainAndSave(ctx, s.config.DatasetPath, quick)
	if err != nil {
		s.logger.Error("retrain failed", zap.Error(err))
		return nil, err
	}
	s.swap(result.Pipeline)
	s.logger.Info("retrain finished",
		zap.String("version", result.Pipeline.Version),
		zap.Duration("duration", result.Duration))

	if s.recorder != nil {
		if err := s.recorder.RecordTraining(ctx, result); err != nil {
			s.logger.Warn("failed to record training run", zap.Error(err))
		}
	}
	return result, nil
}

func (s *ModelService) setRunning(running bool) {
	s.stateMu.Lock()
	s.running = running
	s.stateMu.Unlock()
}

// Status snapshots the loaded pipeline.
func (s *ModelService) Status() Status {
	s.stateMu.Lock()
	status := Status{Retraining: s.running}
	s.stateMu.Unlock()

	pipeline := s.current()
	if pipeline == nil {
		return status
	}
	metrics := pipeline.Metrics
	status.Loaded = true
	status.Version = pipeline.Version
	trainedAt := pipeline.TrainedAt
	status.TrainedAt = &trainedAt
	status.Features = pipeline.Features
	status.Metrics = &metrics
	status.Importances = pipeline.FeatureImportances()
	status.TrainRows = pipeline.TrainRows
	status.TestRows = pipeline.TestRows
	if pipeline.Forest != nil {
		params := pipeline.Forest.Params
		status.Params = &params
	}
	return status
}

// Close stops the artifact watcher.
func (s *ModelService) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}
