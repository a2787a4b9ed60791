package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"evrange/config"
	"evrange/db"
	evhttp "evrange/http"
	"evrange/logging"
	"evrange/ml"
	"evrange/serving"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("exiting")
}

func run(cfg *config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 4. Model service
	trainer := ml.NewTrainer(ml.TrainerConfig{
		ModelPath: cfg.Model.Path,
		Target:    cfg.Dataset.Target,
		Seed:      cfg.Model.Seed,
		TestRatio: cfg.Model.TestRatio,
		CVFolds:   cfg.Model.CVFolds,
	}, logger.Named("trainer"))
	models, err := serving.NewModelService(serving.Config{
		ModelPath:   cfg.Model.Path,
		DatasetPath: cfg.Dataset.Path,
		AutoTrain:   cfg.Model.AutoTrain,
		CacheSize:   cfg.Cache.Predictions,
	}, trainer, store, logger.Named("serving"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, models.Close()) }()

	if err := models.EnsureModel(ctx); err != nil {
		// The server still starts; predictions answer "model unavailable"
		// until an admin retrains.
		logger.Warn("no model available at startup", zap.Error(err))
	}
	if cfg.Model.Watch {
		if err := models.Watch(ctx); err != nil {
			logger.Warn("artifact watcher disabled", zap.Error(err))
		}
	}

	// 5. HTTP server
	sessions, err := evhttp.NewSessionStore(cfg.Cache.Sessions)
	if err != nil {
		return err
	}
	server, err := evhttp.NewServer(evhttp.ServerConfig{
		Port:            cfg.Http.Port,
		Timeout:         cfg.Http.Timeout,
		AllowedOrigins:  cfg.Http.AllowedOrigins,
		AdminPassword:   cfg.Admin.Password,
		RetrainInterval: cfg.Admin.RetrainInterval,
	}, evhttp.Deps{
		Models:   models,
		Store:    store,
		Sessions: sessions,
		Logger:   logger.Named("http"),
	})
	if err != nil {
		return err
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.Start()
	}()

	// 6. Graceful shutdown
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
