package main

import (
	"os"
	"os/exec"
	"strings"

	"github.com/groblegark/relay/internal/client"
	"github.com/groblegark/relay/internal/ui"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	jsonOutput bool
	actor      string

	relayClient client.RelayClient
)

func defaultActor() string {
	out, err := exec.Command("git", "config", "user.name").Output()
	if err == nil {
		name := strings.TrimSpace(string(out))
		if name != "" {
			return name
		}
	}
	return "unknown"
}

func defaultHTTPURL() string {
	if s := os.Getenv("RELAY_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func authToken() string {
	if s := os.Getenv("RELAY_AUTH_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:   "relay <command>",
	Short: "CLI client for the Relay pipeline service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		relayClient = client.NewHTTPClient(httpURL, authToken())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if relayClient != nil {
			relayClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "actor name for created_by and reviewer fields")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline:"},
		&cobra.Group{ID: "gate", Title: "Merge Gate:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Pipeline
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(artifactsCmd)

	// Merge gate
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(protectCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
