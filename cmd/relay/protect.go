package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/groblegark/relay/internal/model"
	"github.com/spf13/cobra"
)

var protectCmd = &cobra.Command{
	Use:     "protect",
	Short:   "Manage branch protection policies",
	GroupID: "gate",
}

var protectSetCmd = &cobra.Command{
	Use:   "set <branch>",
	Short: "Create or replace the protection policy for a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checks, _ := cmd.Flags().GetString("checks")
		approvals, _ := cmd.Flags().GetInt("approvals")
		dismissStale, _ := cmd.Flags().GetBool("dismiss-stale")
		pushers, _ := cmd.Flags().GetString("pushers")
		forcePush, _ := cmd.Flags().GetBool("allow-force-push")
		deletion, _ := cmd.Flags().GetBool("allow-deletion")

		p := &model.BranchProtection{
			Branch:            args[0],
			RequiredApprovals: approvals,
			DismissStale:      dismissStale,
			AllowForcePush:    forcePush,
			AllowDeletion:     deletion,
		}
		if checks != "" {
			p.RequiredChecks = strings.Split(checks, ",")
		}
		if pushers != "" {
			p.RestrictPushers = strings.Split(pushers, ",")
		}

		out, err := relayClient.SetProtection(context.Background(), p)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(out)
			return nil
		}
		printProtectionTable(out)
		return nil
	},
}

var protectShowCmd = &cobra.Command{
	Use:   "show <branch>",
	Short: "Show the protection policy for a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := relayClient.GetProtection(context.Background(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(p)
			return nil
		}
		printProtectionTable(p)
		return nil
	},
}

var protectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all protected branches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := relayClient.ListProtections(context.Background())
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(ps)
			return nil
		}
		if len(ps) == 0 {
			fmt.Println("no protected branches")
			return nil
		}
		printProtectionListTable(ps)
		return nil
	},
}

var protectRemoveCmd = &cobra.Command{
	Use:   "remove <branch>",
	Short: "Remove the protection policy from a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := relayClient.DeleteProtection(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("protection removed from %q\n", args[0])
		return nil
	},
}

func init() {
	protectSetCmd.Flags().String("checks", "", "required check names (comma-separated)")
	protectSetCmd.Flags().Int("approvals", 0, "required number of approving reviews")
	protectSetCmd.Flags().Bool("dismiss-stale", false, "dismiss approvals when new commits are pushed")
	protectSetCmd.Flags().String("pushers", "", "users allowed to push (comma-separated, empty = anyone)")
	protectSetCmd.Flags().Bool("allow-force-push", false, "allow force pushes to the branch")
	protectSetCmd.Flags().Bool("allow-deletion", false, "allow deleting the branch")

	protectCmd.AddCommand(protectSetCmd)
	protectCmd.AddCommand(protectShowCmd)
	protectCmd.AddCommand(protectListCmd)
	protectCmd.AddCommand(protectRemoveCmd)
}
