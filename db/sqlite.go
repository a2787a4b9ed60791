package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"evrange/ml"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    version TEXT NOT NULL,
    r2 REAL,
    mae REAL,
    rmse REAL,
    cv_r2 REAL,
    train_rows INTEGER,
    test_rows INTEGER,
    dropped_rows INTEGER,
    n_estimators INTEGER,
    max_depth INTEGER,
    min_samples_split INTEGER,
    min_samples_leaf INTEGER,
    quick INTEGER,
    duration_ms INTEGER,
    trained_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    inputs TEXT NOT NULL,
    predicted_km REAL NOT NULL,
    model_version TEXT,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
`

// Store records training runs and served predictions.
type Store struct {
	database *sql.DB
}

// Open creates the database file and its tables if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(1)
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, err
	}
	return &Store{database: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.database == nil {
		return nil
	}
	return s.database.Close()
}

// TrainingLog is one row of training_log.
type TrainingLog struct {
	Version         string        `json:"version"`
	R2              float64       `json:"r2"`
	MAE             float64       `json:"mae"`
	RMSE            float64       `json:"rmse"`
	CVR2            *float64      `json:"cv_r2,omitempty"`
	TrainRows       int           `json:"train_rows"`
	TestRows        int           `json:"test_rows"`
	DroppedRows     int           `json:"dropped_rows"`
	NEstimators     int           `json:"n_estimators"`
	MaxDepth        int           `json:"max_depth"`
	MinSamplesSplit int           `json:"min_samples_split"`
	MinSamplesLeaf  int           `json:"min_samples_leaf"`
	Quick           bool          `json:"quick"`
	Duration        time.Duration `json:"duration"`
	TrainedAt       time.Time     `json:"trained_at"`
}

// RecordTraining implements serving.RunRecorder.
func (s *Store) RecordTraining(ctx context.Context, result *ml.TrainResult) error {
	if result == nil || result.Pipeline == nil {
		return errors.New("training result is empty")
	}
	var cv sql.NullFloat64
	if !math.IsNaN(result.CVScore) {
		cv = sql.NullFloat64{Float64: result.CVScore, Valid: true}
	}
	_, err := s.database.ExecContext(ctx, `
        INSERT INTO training_log (
            version, r2, mae, rmse, cv_r2, train_rows, test_rows, dropped_rows,
            n_estimators, max_depth, min_samples_split, min_samples_leaf,
            quick, duration_ms, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.Pipeline.Version,
		result.Metrics.R2,
		result.Metrics.MAE,
		result.Metrics.RMSE,
		cv,
		result.TrainRows,
		result.TestRows,
		result.DroppedRows,
		result.Params.NEstimators,
		result.Params.MaxDepth,
		result.Params.MinSamplesSplit,
		result.Params.MinSamplesLeaf,
		result.Quick,
		result.Duration.Milliseconds(),
		result.Pipeline.TrainedAt.UTC(),
	)
	return err
}

// RecentTrainings returns up to limit runs, newest first.
func (s *Store) RecentTrainings(ctx context.Context, limit int) ([]TrainingLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT version, r2, mae, rmse, cv_r2, train_rows, test_rows, dropped_rows,
               n_estimators, max_depth, min_samples_split, min_samples_leaf,
               quick, duration_ms, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var cv sql.NullFloat64
		var durationMS int64
		if err := rows.Scan(&log.Version, &log.R2, &log.MAE, &log.RMSE, &cv,
			&log.TrainRows, &log.TestRows, &log.DroppedRows,
			&log.NEstimators, &log.MaxDepth, &log.MinSamplesSplit, &log.MinSamplesLeaf,
			&log.Quick, &durationMS, &log.TrainedAt); err != nil {
			return nil, err
		}
		if cv.Valid {
			value := cv.Float64
			log.CVR2 = &value
		}
		log.Duration = time.Duration(durationMS) * time.Millisecond
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// PredictionLog is one served prediction.
type PredictionLog struct {
	Source       string        `json:"source"`
	Inputs       ml.FeatureRow `json:"inputs"`
	PredictedKM  float64       `json:"predicted_km"`
	ModelVersion string        `json:"model_version"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RecordPrediction stores the inputs as JSON.
func (s *Store) RecordPrediction(ctx context.Context, entry PredictionLog) error {
	inputs, err := json.Marshal(entry.Inputs)
	if err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err = s.database.ExecContext(ctx, `
        INSERT INTO predictions (source, inputs, predicted_km, model_version, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		entry.Source, string(inputs), entry.PredictedKM, entry.ModelVersion, entry.CreatedAt.UTC())
	return err
}

// RecentPredictions returns the newest entries first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT source, inputs, predicted_km, model_version, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]PredictionLog, 0)
	for rows.Next() {
		var entry PredictionLog
		var inputs string
		var version sql.NullString
		if err := rows.Scan(&entry.Source, &inputs, &entry.PredictedKM, &version, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(inputs), &entry.Inputs); err != nil {
			return nil, err
		}
		entry.ModelVersion = version.String
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
