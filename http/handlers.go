package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"evrange/db"
	"evrange/ml"
	"evrange/monitoring"
	"evrange/serving"

	"go.uber.org/zap"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var mismatch *ml.SchemaMismatchError
	switch {
	case errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ml.ErrArtifactMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, serving.ErrRetrainInProgress):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.models.Status()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"model_loaded": status.Loaded,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	status := s.models.Status()
	loaded := 0.0
	if status.Loaded {
		loaded = 1
	}
	s.metrics.SetGauge("model_loaded", nil, loaded)
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(s.metrics.ExportPrometheus()))
}

func (s *Server) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.models.Status())
}

type predictResponse struct {
	RangeKM      float64 `json:"range_km"`
	ModelVersion string  `json:"model_version"`
}

// handlePredict takes all nine features. A null value is left for the
// pipeline's imputer.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var body map[string]*float64
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	row := make(ml.FeatureRow, len(body))
	for name, value := range body {
		if value == nil {
			row[name] = math.NaN()
			continue
		}
		row[name] = *value
	}
	s.predict(w, r, "api", row)
}

func (s *Server) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	var input ml.FormInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := input.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.predict(w, r, "form", input.Row())
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request, source string, row ml.FeatureRow) {
	value, err := s.models.Predict(r.Context(), row)
	s.countPrediction(source, err)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	version := s.models.Status().Version
	s.recordPrediction(r.Context(), source, row, value, version)
	respondJSON(w, http.StatusOK, predictResponse{RangeKM: value, ModelVersion: version})
}

func (s *Server) countPrediction(source string, err error) {
	if err != nil {
		s.metrics.IncrCounter("prediction_errors_total", monitoring.Labels{"source": source}, 1)
		return
	}
	s.metrics.IncrCounter("predictions_total", monitoring.Labels{"source": source}, 1)
}

// recordPrediction never fails the request. Missing inputs are not stored.
func (s *Server) recordPrediction(ctx context.Context, source string, row ml.FeatureRow, value float64, version string) {
	if s.store == nil {
		return
	}
	inputs := make(ml.FeatureRow, len(row))
	for name, v := range row {
		if !math.IsNaN(v) {
			inputs[name] = v
		}
	}
	entry := db.PredictionLog{
		Source:       source,
		Inputs:       inputs,
		PredictedKM:  value,
		ModelVersion: version,
		CreatedAt:    time.Now(),
	}
	if err := s.store.RecordPrediction(ctx, entry); err != nil {
		s.logger.Warn("failed to record prediction",
			zap.String("request_id", GetRequestID(ctx)),
			zap.Error(err))
	}
}
