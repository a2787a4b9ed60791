// Package http serves the range predictor: the form page, the JSON API, the
// chat endpoints and the admin retrain route.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"evrange/chat"
	"evrange/db"
	"evrange/ml"
	"evrange/monitoring"
	"evrange/serving"

	"go.uber.org/zap"
)

// ServerConfig holds the listener and request policy settings.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	AdminPassword  string
	// RetrainInterval is the minimum gap between admin retrain requests.
	RetrainInterval time.Duration
	MaxBodyBytes    int64
}

// DefaultServerConfig listens on 8080 with no admin password.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// ModelService is the part of serving.ModelService the handlers use.
type ModelService interface {
	ml.RangePredictor
	Status() serving.Status
	Retrain(ctx context.Context, quick bool) (*ml.TrainResult, error)
}

// Store is optional; without one predictions are not logged and the training
// history route answers 503.
type Store interface {
	RecordPrediction(ctx context.Context, entry db.PredictionLog) error
	RecentTrainings(ctx context.Context, limit int) ([]db.TrainingLog, error)
}

// Deps are the collaborators a Server needs. Store, Sessions and Metrics are optional.
type Deps struct {
	Models   ModelService
	Store    Store
	Sessions *SessionStore
	Metrics  *monitoring.Collector
	Logger   *zap.Logger
}

// Server is the HTTP front end of the range predictor.
type Server struct {
	server *http.Server
	config ServerConfig

	models      ModelService
	store       Store
	sessions    *SessionStore
	metrics     *monitoring.Collector
	interpreter *chat.Interpreter
	logger      *zap.Logger
}

// NewServer builds the route table and wraps it in the middleware chain.
func NewServer(config ServerConfig, deps Deps) (*Server, error) {
	if deps.Models == nil {
		return nil, errors.New("model service is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sessions == nil {
		sessions, err := NewSessionStore(0)
		if err != nil {
			return nil, err
		}
		deps.Sessions = sessions
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewCollector()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultServerConfig().MaxBodyBytes
	}

	s := &Server{
		config:      config,
		models:      deps.Models,
		store:       deps.Store,
		sessions:    deps.Sessions,
		metrics:     deps.Metrics,
		interpreter: chat.NewInterpreter(deps.Models, nil),
		logger:      deps.Logger,
	}

	mux := http.NewServeMux()
	s.RegisterHandlers(mux)

	chain := Chain(
		RecoveryMiddleware(s.logger),
		LoggerMiddleware(s.logger),
		MetricsMiddleware(s.metrics),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
		RequestSizeMiddleware(config.MaxBodyBytes),
	)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// RegisterHandlers mounts every route on mux.
func (s *Server) RegisterHandlers(mux *http.ServeMux) {
	admin := AdminMiddleware(s.config.AdminPassword)
	retrainLimit := RateLimitMiddleware(s.config.RetrainInterval)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleFormSubmit)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/model", s.handleModelStatus)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("POST /api/predict", s.handlePredict)
	mux.HandleFunc("POST /api/predict/form", s.handlePredictForm)
	mux.Handle("POST /api/admin/retrain", admin(retrainLimit(http.HandlerFunc(s.handleRetrain))))
	mux.Handle("GET /api/admin/trainings", admin(http.HandlerFunc(s.handleTrainings)))
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatSocket)
	mux.HandleFunc("GET /api/chat/{id}", s.handleChatHistory)
}

// Handler exposes the wrapped mux, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
