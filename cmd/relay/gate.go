package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var gateCmd = &cobra.Command{
	Use:     "gate <branch>",
	Short:   "Evaluate the merge gate for a branch",
	GroupID: "gate",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch := args[0]
		sha, _ := cmd.Flags().GetString("sha")
		pusher, _ := cmd.Flags().GetString("pusher")

		decision, err := relayClient.GateDecision(context.Background(), branch, sha, pusher)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(decision)
		} else {
			printDecision(decision)
		}
		if !decision.Allowed {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	gateCmd.Flags().String("sha", "", "head commit SHA of the merge candidate")
	gateCmd.Flags().String("pusher", "", "user attempting the merge")
	gateCmd.MarkFlagRequired("sha")
}
