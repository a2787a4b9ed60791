package http

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"evrange/ml"
	"evrange/monitoring"
)

type retrainResponse struct {
	ArtifactPath string          `json:"artifact_path"`
	Version      string          `json:"version"`
	Metrics      ml.Metrics      `json:"metrics"`
	Params       ml.ForestParams `json:"params"`
	CVR2         *float64        `json:"cv_r2,omitempty"`
	Quick        bool            `json:"quick"`
	TrainRows    int             `json:"train_rows"`
	TestRows     int             `json:"test_rows"`
	DroppedRows  int             `json:"dropped_rows"`
	DurationMS   int64           `json:"duration_ms"`
}

// handleRetrain runs a retrain to completion even if the client goes away.
// quick defaults to true.
func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	quick := true
	if raw := r.URL.Query().Get("quick"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "quick must be a boolean")
			return
		}
		quick = parsed
	}

	result, err := s.models.Retrain(context.WithoutCancel(r.Context()), quick)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.IncrCounter("retrains_total", monitoring.Labels{"result": outcome}, 1)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	response := retrainResponse{
		ArtifactPath: result.ArtifactPath,
		Version:      result.Pipeline.Version,
		Metrics:      result.Metrics,
		Params:       result.Params,
		Quick:        result.Quick,
		TrainRows:    result.TrainRows,
		TestRows:     result.TestRows,
		DroppedRows:  result.DroppedRows,
		DurationMS:   result.Duration.Milliseconds(),
	}
	if !math.IsNaN(result.CVScore) {
		cv := result.CVScore
		response.CVR2 = &cv
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleTrainings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "training history is not available")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.store.RecentTrainings(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"trainings": runs,
		"count":     len(runs),
	})
}
