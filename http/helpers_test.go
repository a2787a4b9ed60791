package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"evrange/db"
	"evrange/ml"
	"evrange/serving"
)

type fakeModels struct {
	mu      sync.Mutex
	value   float64
	err     error
	version string
	rows    []ml.FeatureRow

	retrainErr error
	retrains   int
}

func (f *fakeModels) Predict(ctx context.Context, row ml.FeatureRow) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	if f.err != nil {
		return 0, f.err
	}
	if _, err := ml.FeatureVector(row, ml.FeatureNames()); err != nil {
		return 0, err
	}
	return f.value, nil
}

func (f *fakeModels) Status() serving.Status {
	return serving.Status{Loaded: f.err == nil, Version: f.version}
}

func (f *fakeModels) Retrain(ctx context.Context, quick bool) (*ml.TrainResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrains++
	if f.retrainErr != nil {
		return nil, f.retrainErr
	}
	return &ml.TrainResult{
		ArtifactPath: "models/final_ev_model.json",
		Pipeline:     &ml.Pipeline{Version: "v2", TrainedAt: time.Now()},
		Metrics:      ml.Metrics{R2: 0.9, MAE: 12, RMSE: 20},
		Params:       ml.QuickGrid()[0],
		CVScore:      0.88,
		Quick:        quick,
		TrainRows:    80,
		TestRows:     20,
	}, nil
}

func (f *fakeModels) lastRow() ml.FeatureRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rows) == 0 {
		return nil
	}
	return f.rows[len(f.rows)-1]
}

type fakeStore struct {
	mu          sync.Mutex
	predictions []db.PredictionLog
	trainings   []db.TrainingLog
}

func (f *fakeStore) RecordPrediction(ctx context.Context, entry db.PredictionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predictions = append(f.predictions, entry)
	return nil
}

func (f *fakeStore) RecentTrainings(ctx context.Context, limit int) ([]db.TrainingLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trainings, nil
}

func (f *fakeStore) recorded() []db.PredictionLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]db.PredictionLog(nil), f.predictions...)
}

func newTestServer(t *testing.T, models *fakeModels, store *fakeStore) *Server {
	t.Helper()
	config := DefaultServerConfig()
	config.AdminPassword = "secret"
	deps := Deps{Models: models}
	if store != nil {
		deps.Store = store
	}
	server, err := NewServer(config, deps)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return server
}

func do(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}
