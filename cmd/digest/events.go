package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "Inspect canonical event records",
	GroupID: "data",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unexpired event records",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := eventFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		pg, err := openStore()
		if err != nil {
			return err
		}
		defer pg.Close()

		recs, err := pg.ListEvents(context.Background(), filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			if recs == nil {
				recs = []*model.EventRecord{}
			}
			return printJSON(os.Stdout, recs)
		}
		printEventTable(os.Stdout, recs, max(ui.Width(100)-70, 20))
		return nil
	},
}

var eventsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one event record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pg, err := openStore()
		if err != nil {
			return err
		}
		defer pg.Close()

		rec, err := pg.GetEvent(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("event %s: %w", args[0], err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, rec)
		}
		printEvent(os.Stdout, rec)
		return nil
	},
}

var eventsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an event record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pg, err := openStore()
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.DeleteEvent(context.Background(), args[0]); err != nil {
			return fmt.Errorf("event %s: %w", args[0], err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// eventFilterFromFlags validates the list filters.
func eventFilterFromFlags(cmd *cobra.Command) (model.EventFilter, error) {
	var filter model.EventFilter
	date, _ := cmd.Flags().GetString("date")
	if date != "" {
		if _, err := model.ParseDay(date); err != nil {
			return filter, fmt.Errorf("--date must be YYYY-MM-DD")
		}
		filter.Date = date
	}
	since, _ := cmd.Flags().GetDuration("since")
	if since < 0 {
		return filter, fmt.Errorf("--since must not be negative")
	}
	if since > 0 {
		t := time.Now().Add(-since)
		filter.UpdatedSince = &t
	}
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 {
		return filter, fmt.Errorf("--limit must not be negative")
	}
	filter.Limit = limit
	return filter, nil
}

func init() {
	eventsListCmd.Flags().String("date", "", "only records dated YYYY-MM-DD")
	eventsListCmd.Flags().Duration("since", 0, "only records updated within this duration")
	eventsListCmd.Flags().Int("limit", 50, "maximum number of records (0 = all)")

	eventsCmd.AddCommand(eventsListCmd, eventsShowCmd, eventsDeleteCmd)
}
