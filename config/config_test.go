package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
model:
  path: /var/lib/evrange/model.json
  quick: false
http:
  port: 9090
  timeout: 10s
admin:
  password: letmein
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	config, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Model.Path != "/var/lib/evrange/model.json" || config.Model.Quick {
		t.Fatalf("model section not applied: %+v", config.Model)
	}
	if config.Http.Port != 9090 || config.Http.Timeout != 10*time.Second {
		t.Fatalf("http section not applied: %+v", config.Http)
	}
	if config.Admin.Password != "letmein" {
		t.Fatalf("admin password not applied")
	}
	if config.Model.Seed != 42 || config.Dataset.Path == "" {
		t.Fatalf("defaults lost: %+v", config)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model:\n  test_ratio: 1.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	config, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Http.Port != 8080 {
		t.Fatalf("expected defaults, got port %d", config.Http.Port)
	}
}

func TestLoadKeepsZeroSeedAndTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "dataset:\n  target: range\nmodel:\n  seed: 0\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	config, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Model.Seed != 0 {
		t.Fatalf("expected seed 0, got %d", config.Model.Seed)
	}
	if config.Dataset.Target != "range" {
		t.Fatalf("expected target range, got %q", config.Dataset.Target)
	}
}
