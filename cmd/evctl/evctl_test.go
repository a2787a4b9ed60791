package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"evrange/config"
	"evrange/db"
	"evrange/ml"

	"github.com/gonuts/commander"
)

func parse(t *testing.T, cmd *commander.Command, args ...string) *commander.Command {
	t.Helper()
	if err := cmd.Flag.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return cmd
}

// writeWorkspace lays out a dataset and a config pointing at it.
func writeWorkspace(t *testing.T, quick bool) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	rnd := rand.New(rand.NewSource(7))

	var b strings.Builder
	b.WriteString(strings.Join(ml.FeatureNames(), ",") + ",range_km\n")
	for i := 0; i < 80; i++ {
		battery := 30 + rnd.Float64()*90
		row := []float64{
			120 + rnd.Float64()*130,
			battery,
			float64(200 + rnd.Intn(6000)),
			200 + rnd.Float64()*600,
			3 + rnd.Float64()*9,
			50 + rnd.Float64()*200,
			rnd.Float64() * 2000,
			3800 + rnd.Float64()*1400,
			1750 + rnd.Float64()*250,
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprintf("%g", v)
		}
		fmt.Fprintf(&b, "%s,%g\n", strings.Join(cells, ","), battery*6)
	}
	dataPath := filepath.Join(dir, "ev.csv")
	if err := os.WriteFile(dataPath, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}

	modelPath := filepath.Join(dir, "model.json")
	dbPath := filepath.Join(dir, "evrange.db")
	yaml := fmt.Sprintf(`
dataset:
  path: %s
model:
  path: %s
  quick: %t
database:
  path: %s
log:
  level: error
`, dataPath, modelPath, quick, dbPath)
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return configPath, modelPath, dbPath
}

func TestQuickModePrecedence(t *testing.T) {
	cfg := config.Default()

	cfg.Model.Quick = false
	if quickMode(parse(t, trainCmd()), cfg) {
		t.Fatal("model.quick=false should apply without -quick")
	}
	if !quickMode(parse(t, trainCmd(), "-quick"), cfg) {
		t.Fatal("-quick should override model.quick=false")
	}

	cfg.Model.Quick = true
	if !quickMode(parse(t, trainCmd()), cfg) {
		t.Fatal("model.quick=true should apply without -quick")
	}
	if quickMode(parse(t, trainCmd(), "-quick=false"), cfg) {
		t.Fatal("-quick=false should override model.quick=true")
	}
}

func TestRunTrainThenPredict(t *testing.T) {
	configPath, modelPath, dbPath := writeWorkspace(t, true)

	if err := runTrain(parse(t, trainCmd(), "-config", configPath), nil); err != nil {
		t.Fatalf("train: %v", err)
	}
	if _, err := os.Stat(modelPath); err != nil {
		t.Fatalf("artifact not written: %v", err)
	}

	store, err := db.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	runs, err := store.RecentTrainings(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || !runs[0].Quick {
		t.Fatalf("expected one quick run, got %+v", runs)
	}

	if err := runPredict(parse(t, predictCmd(), "-config", configPath, "-battery", "75"), nil); err != nil {
		t.Fatalf("predict: %v", err)
	}
}

func TestRunPredictRejectsInvalidInput(t *testing.T) {
	configPath, _, _ := writeWorkspace(t, true)

	for _, value := range []string{"NaN", "500"} {
		err := runPredict(parse(t, predictCmd(), "-config", configPath, "-battery", value), nil)
		if err == nil || !strings.Contains(err.Error(), ml.FeatureBattery) {
			t.Fatalf("battery %s: expected bounds error, got %v", value, err)
		}
	}
}

func TestRunPredictWithoutArtifact(t *testing.T) {
	configPath, _, _ := writeWorkspace(t, true)

	err := runPredict(parse(t, predictCmd(), "-config", configPath), nil)
	if !errors.Is(err, ml.ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}
}
