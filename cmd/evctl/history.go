package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"evrange/config"
	"evrange/db"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
	"go.uber.org/multierr"
)

func historyCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runHistory,
		UsageLine: "history [options]",
		Short:     "list recent training runs",
		Flag:      *flag.NewFlagSet("history", flag.ExitOnError),
	}
	cmd.Flag.String("config", "config.yaml", "path to config file")
	cmd.Flag.Int("n", 10, "number of runs to show")
	return cmd
}

func runHistory(cmd *commander.Command, args []string) (err error) {
	cfg, err := config.LoadOrDefault(stringFlag(cmd, "config"))
	if err != nil {
		return err
	}
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	runs, err := store.RecentTrainings(context.Background(), intFlag(cmd, "n"))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRAINED AT\tVERSION\tR2\tMAE\tRMSE\tTREES\tDEPTH\tQUICK")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.2f\t%.2f\t%d\t%d\t%t\n",
			run.TrainedAt.Local().Format("2006-01-02 15:04:05"),
			run.Version, run.R2, run.MAE, run.RMSE,
			run.NEstimators, run.MaxDepth, run.Quick)
	}
	return w.Flush()
}
