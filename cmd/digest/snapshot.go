package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot [date]",
	Short:   "Show the newsletter snapshot for a day (default today)",
	GroupID: "digest",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		date := model.StartOfDay(time.Now().In(cfg.Location)).Format(model.DayLayout)
		if len(args) == 1 {
			if _, err := model.ParseDay(args[0]); err != nil {
				return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
			}
			date = args[0]
		}

		pg, err := openStore()
		if err != nil {
			return err
		}
		defer pg.Close()
		snapshots, err := newSnapshotStore(ctx, cfg, pg)
		if err != nil {
			return err
		}

		snap, err := snapshots.GetSnapshot(ctx, date)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", date, err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, snap)
		}
		printSnapshot(os.Stdout, snap)
		return nil
	},
}
