package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	digestsync "github.com/alfredjeanlab/newsdigest/internal/sync"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write all unexpired event records as JSONL",
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		pg, err := openStore()
		if err != nil {
			return err
		}
		defer pg.Close()

		var w io.Writer = os.Stdout
		if out != "" && out != "-" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := digestsync.ExportJSONL(context.Background(), pg, w); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if out != "" && out != "-" {
			fmt.Fprintf(os.Stderr, "Exported to %s\n", out)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
}
