// Package config loads the YAML configuration shared by the server and evctl.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the whole config.yaml. Missing keys keep their Default values.
type Config struct {
	Dataset struct {
		Path   string `yaml:"path"`
		Target string `yaml:"target"`
	} `yaml:"dataset"`
	Model struct {
		Path      string  `yaml:"path"`
		Quick     bool    `yaml:"quick"`
		AutoTrain bool    `yaml:"auto_train"`
		Seed      int64   `yaml:"seed"`
		TestRatio float64 `yaml:"test_ratio"`
		CVFolds   int     `yaml:"cv_folds"`
		Watch     bool    `yaml:"watch"`
	} `yaml:"model"`
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Admin struct {
		Password        string        `yaml:"password"`
		RetrainInterval time.Duration `yaml:"retrain_interval"`
	} `yaml:"admin"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log   Log `yaml:"log"`
	Cache struct {
		Predictions int `yaml:"predictions"`
		Sessions    int `yaml:"sessions"`
	} `yaml:"cache"`
}

// Log configures the console logger and the optional rotated log file.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the settings used when config.yaml is absent.
func Default() *Config {
	c := &Config{}
	c.Dataset.Path = "electric_vehicles_spec_2025.csv"
	c.Dataset.Target = "range_km"
	c.Model.Path = "models/final_ev_model.json"
	c.Model.Quick = true
	c.Model.AutoTrain = true
	c.Model.Seed = 42
	c.Model.TestRatio = 0.2
	c.Model.CVFolds = 3
	c.Model.Watch = true
	c.Http.Port = 8080
	c.Http.Timeout = 30 * time.Second
	c.Http.AllowedOrigins = []string{"*"}
	c.Admin.RetrainInterval = 10 * time.Second
	c.Database.Path = "data/evrange.db"
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 50
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	c.Cache.Predictions = 1024
	c.Cache.Sessions = 512
	return c
}

// Load decodes path over the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// LoadOrDefault falls back to Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	config, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}

// Validate checks ranges and required paths.
func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.Http.Port)
	}
	if c.Model.TestRatio <= 0 || c.Model.TestRatio >= 1 {
		return fmt.Errorf("model.test_ratio must be in (0,1), got %g", c.Model.TestRatio)
	}
	if c.Model.CVFolds < 2 {
		return fmt.Errorf("model.cv_folds must be at least 2, got %d", c.Model.CVFolds)
	}
	if c.Admin.RetrainInterval < 0 {
		return fmt.Errorf("admin.retrain_interval must not be negative, got %s", c.Admin.RetrainInterval)
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Dataset.Path == "" {
		return errors.New("dataset.path is required")
	}
	if c.Dataset.Target == "" {
		return errors.New("dataset.target is required")
	}
	return nil
}
