package main

import (
	"fmt"

	"evrange/config"
	"evrange/ml"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

func predictCmd() *commander.Command {
	defaults := ml.DefaultFormInput()
	cmd := &commander.Command{
		Run:       runPredict,
		UsageLine: "predict [options]",
		Short:     "estimate the range of one vehicle",
		Long: `
predict loads the model artifact and estimates the driving range from the
four form fields. The remaining features take their usual defaults.

	$ evctl predict -battery 60 -length 4500 -speed 180 -accel 7
`,
		Flag: *flag.NewFlagSet("predict", flag.ExitOnError),
	}
	cmd.Flag.String("config", "config.yaml", "path to config file")
	cmd.Flag.Float64("battery", defaults.BatteryKWh, "battery capacity in kWh")
	cmd.Flag.Float64("length", defaults.LengthMM, "length in mm")
	cmd.Flag.Float64("speed", defaults.TopSpeedKmh, "top speed in km/h")
	cmd.Flag.Float64("accel", defaults.AccelerationS, "0-100 km/h in seconds")
	return cmd
}

func runPredict(cmd *commander.Command, args []string) error {
	cfg, err := config.LoadOrDefault(stringFlag(cmd, "config"))
	if err != nil {
		return err
	}
	input := ml.FormInput{
		BatteryKWh:    floatFlag(cmd, "battery"),
		LengthMM:      floatFlag(cmd, "length"),
		TopSpeedKmh:   floatFlag(cmd, "speed"),
		AccelerationS: floatFlag(cmd, "accel"),
	}
	if err := input.Validate(); err != nil {
		return err
	}

	pipeline, err := ml.LoadPipeline(cfg.Model.Path)
	if err != nil {
		return err
	}
	value, err := pipeline.Predict(input.Row())
	if err != nil {
		return err
	}
	fmt.Printf("Estimated range: %.2f km\n", value)
	return nil
}
