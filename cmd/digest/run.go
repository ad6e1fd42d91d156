package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Extract events from new sources and write today's snapshot",
	GroupID: "digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := buildStack(ctx, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := st.cycle.Run(ctx)
		if res.RunID != "" {
			if jsonOutput {
				if perr := printJSON(os.Stdout, res); perr != nil {
					return perr
				}
			} else {
				printCycleResult(os.Stdout, res)
			}
		}
		return err
	},
}
