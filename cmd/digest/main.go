package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/newsdigest/internal/config"
	"github.com/alfredjeanlab/newsdigest/internal/ui"
)

var (
	jsonOutput bool
	noColor    bool

	cfg    *config.Config
	policy config.Policy
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "digest <command>",
	Short:         "Build daily family newsletters from translated school sources",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if policy, err = config.LoadPolicy(cfg.PolicyFile); err != nil {
			return err
		}
		logger = newLogger(os.Stderr, cfg.LogFormat)
		return nil
	},
}

// newLogger returns the process logger for the configured format.
func newLogger(w io.Writer, format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "digest", Title: "Digest:"},
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(remoteCmd)

	rootCmd.SetHelpFunc(colorizedHelpFunc())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
