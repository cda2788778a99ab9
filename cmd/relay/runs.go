package main

import (
	"context"
	"strings"

	"github.com/groblegark/relay/internal/client"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:     "runs",
	Short:   "Inspect workflow runs",
	GroupID: "pipeline",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflow runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		event, _ := cmd.Flags().GetString("event")
		branch, _ := cmd.Flags().GetString("branch")
		sha, _ := cmd.Flags().GetString("sha")
		workflow, _ := cmd.Flags().GetString("workflow")
		sort, _ := cmd.Flags().GetString("sort")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		req := &client.ListRunsRequest{
			Branch:    branch,
			CommitSHA: sha,
			Workflow:  workflow,
			Sort:      sort,
			Limit:     limit,
			Offset:    offset,
		}
		if status != "" {
			req.Status = strings.Split(status, ",")
		}
		if event != "" {
			req.Event = strings.Split(event, ",")
		}

		resp, err := relayClient.ListRuns(context.Background(), req)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(resp)
			return nil
		}
		printRunListTable(resp.Runs, resp.Total)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its stage results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := relayClient.GetRun(context.Background(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(run)
			return nil
		}
		printRunTable(run)
		return nil
	},
}

var runsEventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "Show the event history for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		evts, err := relayClient.GetRunEvents(context.Background(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(evts)
			return nil
		}
		printEventListTable(evts)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (comma-separated)")
	runsListCmd.Flags().String("event", "", "filter by event kind (comma-separated)")
	runsListCmd.Flags().String("branch", "", "filter by branch")
	runsListCmd.Flags().String("sha", "", "filter by commit SHA")
	runsListCmd.Flags().String("workflow", "", "filter by workflow name")
	runsListCmd.Flags().String("sort", "", "sort order (e.g. created_at, -created_at)")
	runsListCmd.Flags().Int("limit", 50, "maximum runs to return")
	runsListCmd.Flags().Int("offset", 0, "offset for pagination")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsEventsCmd)
	runsCmd.AddCommand(runsWatchCmd)
}
