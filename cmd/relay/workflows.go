package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var workflowsCmd = &cobra.Command{
	Use:     "workflows",
	Short:   "List the workflows the server has loaded",
	GroupID: "pipeline",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := relayClient.ListWorkflows(context.Background())
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(defs)
			return nil
		}
		if len(defs) == 0 {
			fmt.Println("no workflows loaded")
			return nil
		}
		printWorkflowListTable(defs)
		return nil
	},
}
