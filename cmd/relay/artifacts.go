package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var artifactsCmd = &cobra.Command{
	Use:     "artifacts",
	Short:   "Inspect and download build artifacts",
	GroupID: "pipeline",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list <run-id>",
	Short: "List artifacts produced by a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		artifacts, err := relayClient.ListRunArtifacts(context.Background(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(artifacts)
			return nil
		}
		if len(artifacts) == 0 {
			fmt.Println("no artifacts")
			return nil
		}
		printArtifactListTable(artifacts)
		return nil
	},
}

var artifactsShowCmd = &cobra.Command{
	Use:   "show <artifact-id>",
	Short: "Show artifact metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := relayClient.GetArtifact(context.Background(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(a)
			return nil
		}
		printArtifactTable(a)
		return nil
	},
}

var artifactsDownloadCmd = &cobra.Command{
	Use:   "download <artifact-id>",
	Short: "Download an artifact blob",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := relayClient.GetArtifact(context.Background(), args[0])
		if err != nil {
			return err
		}
		data, err := relayClient.DownloadArtifact(context.Background(), args[0])
		if err != nil {
			return err
		}

		if output == "" {
			output = a.Name
		}
		if output == "-" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", output, len(data))
		return nil
	},
}

func init() {
	artifactsDownloadCmd.Flags().String("output", "", "output path (defaults to the artifact name, - for stdout)")

	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsShowCmd)
	artifactsCmd.AddCommand(artifactsDownloadCmd)
}
