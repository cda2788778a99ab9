package main

import (
	"context"
	"fmt"

	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/trigger"
	"github.com/spf13/cobra"
)

var emitCmd = &cobra.Command{
	Use:     "emit",
	Short:   "Emit a repository event and start matching workflow runs",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		branch, _ := cmd.Flags().GetString("branch")
		sha, _ := cmd.Flags().GetString("sha")

		runs, err := relayClient.EmitEvent(context.Background(), trigger.Event{
			Kind:      model.EventKind(kind),
			Branch:    branch,
			CommitSHA: sha,
			Actor:     actor,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(runs)
			return nil
		}
		if len(runs) == 0 {
			fmt.Println("no workflows matched")
			return nil
		}
		printRunListTable(runs, len(runs))
		return nil
	},
}

func init() {
	emitCmd.Flags().String("kind", "push", "event kind (push or pull_request)")
	emitCmd.Flags().String("branch", "", "branch name (target branch for pull_request)")
	emitCmd.Flags().String("sha", "", "commit SHA")
	emitCmd.MarkFlagRequired("branch")
	emitCmd.MarkFlagRequired("sha")
}
