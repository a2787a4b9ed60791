// Command evctl trains, queries and inspects the range model offline.
package main

import (
	"fmt"
	"os"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

func main() {
	cmd := &commander.Command{
		UsageLine: "evctl <command> [options]",
		Short:     "EV range model tool",
		Subcommands: []*commander.Command{
			trainCmd(),
			predictCmd(),
			historyCmd(),
		},
		Flag: *flag.NewFlagSet("evctl", flag.ExitOnError),
	}

	if err := cmd.Dispatch(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "**err**: %v\n", err)
		os.Exit(1)
	}
}
