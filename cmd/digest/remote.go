package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/newsdigest/internal/client"
	"github.com/alfredjeanlab/newsdigest/internal/ui"
)

var (
	serverURL   string
	serverToken string

	digestClient client.DigestClient
)

func defaultServerURL() string {
	if s := os.Getenv("NEWSDIGEST_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Talk to a running digest server",
	GroupID: "system",
	// Remote commands never open the stores, so configuration is not required.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		digestClient = client.NewHTTPClient(serverURL, serverToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if digestClient != nil {
			digestClient.Close()
		}
	},
}

var remoteRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a cycle on the server and wait for it",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := digestClient.TriggerRun(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, res)
		}
		printCycleResult(os.Stdout, *res)
		return nil
	},
}

var remoteLastCmd = &cobra.Command{
	Use:   "last",
	Short: "Show the server's most recent cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := digestClient.LastRun(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, res)
		}
		printCycleResult(os.Stdout, *res)
		return nil
	},
}

var remoteSnapshotCmd = &cobra.Command{
	Use:   "snapshot <date>",
	Short: "Fetch a snapshot from the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := digestClient.GetSnapshot(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, snap)
		}
		printSnapshot(os.Stdout, snap)
		return nil
	},
}

var remoteHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := digestClient.Health(context.Background()); err != nil {
			return err
		}
		fmt.Println(ui.RenderOK("ok"))
		return nil
	},
}

func init() {
	remoteCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "digest server URL")
	remoteCmd.PersistentFlags().StringVar(&serverToken, "token", os.Getenv("NEWSDIGEST_AUTH_TOKEN"), "bearer token")

	remoteCmd.AddCommand(remoteRunCmd, remoteLastCmd, remoteSnapshotCmd, remoteHealthCmd)
}
