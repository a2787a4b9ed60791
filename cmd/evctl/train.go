package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"

	"evrange/config"
	"evrange/db"
	"evrange/logging"
	"evrange/ml"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
	"go.uber.org/multierr"
)

func trainCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runTrain,
		UsageLine: "train [options]",
		Short:     "train a model and replace the artifact",
		Long: `
train fits the imputer, scaler and random forest on the dataset and
atomically replaces the model artifact. A running server picks it up.

	$ evctl train -config config.yaml -data electric_vehicles_spec_2025.csv -quick
`,
		Flag: *flag.NewFlagSet("train", flag.ExitOnError),
	}
	cmd.Flag.String("config", "config.yaml", "path to config file")
	cmd.Flag.String("data", "", "dataset CSV (overrides dataset.path)")
	cmd.Flag.String("out", "", "artifact path (overrides model.path)")
	cmd.Flag.Bool("quick", true, "use the quick search grid (default from model.quick)")
	return cmd
}

func runTrain(cmd *commander.Command, args []string) (err error) {
	cfg, err := config.LoadOrDefault(stringFlag(cmd, "config"))
	if err != nil {
		return err
	}
	if data := stringFlag(cmd, "data"); data != "" {
		cfg.Dataset.Path = data
	}
	if out := stringFlag(cmd, "out"); out != "" {
		cfg.Model.Path = out
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	trainer := ml.NewTrainer(ml.TrainerConfig{
		ModelPath: cfg.Model.Path,
		Target:    cfg.Dataset.Target,
		Seed:      cfg.Model.Seed,
		TestRatio: cfg.Model.TestRatio,
		CVFolds:   cfg.Model.CVFolds,
	}, logger)
	result, err := trainer.TrainAndSave(ctx, cfg.Dataset.Path, quickMode(cmd, cfg))
	if err != nil {
		return err
	}

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()
	if err := store.RecordTraining(ctx, result); err != nil {
		return err
	}

	fmt.Printf("model saved to %s (version %s)\n", result.ArtifactPath, result.Pipeline.Version)
	fmt.Printf("params: %s\n", result.Params)
	fmt.Printf("rows: train=%d test=%d dropped=%d\n", result.TrainRows, result.TestRows, result.DroppedRows)
	fmt.Printf("R2=%.4f MAE=%.2f RMSE=%.2f\n", result.Metrics.R2, result.Metrics.MAE, result.Metrics.RMSE)
	if !math.IsNaN(result.CVScore) {
		fmt.Printf("cv R2=%.4f\n", result.CVScore)
	}
	return nil
}

// quickMode prefers an explicit -quick over model.quick.
func quickMode(cmd *commander.Command, cfg *config.Config) bool {
	if flagSet(cmd, "quick") {
		return boolFlag(cmd, "quick")
	}
	return cfg.Model.Quick
}

func flagSet(cmd *commander.Command, name string) bool {
	set := false
	cmd.Flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func stringFlag(cmd *commander.Command, name string) string {
	return cmd.Flag.Lookup(name).Value.Get().(string)
}

func boolFlag(cmd *commander.Command, name string) bool {
	return cmd.Flag.Lookup(name).Value.Get().(bool)
}

func floatFlag(cmd *commander.Command, name string) float64 {
	return cmd.Flag.Lookup(name).Value.Get().(float64)
}

func intFlag(cmd *commander.Command, name string) int {
	return cmd.Flag.Lookup(name).Value.Get().(int)
}
