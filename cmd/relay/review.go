package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:     "review",
	Short:   "Manage approving reviews on branches",
	GroupID: "gate",
}

var reviewAddCmd = &cobra.Command{
	Use:   "add <branch>",
	Short: "Record an approving review on a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch := args[0]
		sha, _ := cmd.Flags().GetString("sha")
		reviewer, _ := cmd.Flags().GetString("reviewer")
		if reviewer == "" {
			reviewer = actor
		}

		review, err := relayClient.AddReview(context.Background(), branch, sha, reviewer)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(review)
			return nil
		}
		fmt.Printf("review by %s recorded on %s@%s\n", review.Reviewer, review.Branch, review.CommitSHA)
		return nil
	},
}

var reviewListCmd = &cobra.Command{
	Use:   "list <branch>",
	Short: "List reviews on a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviews, err := relayClient.GetReviews(context.Background(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(reviews)
			return nil
		}
		if len(reviews) == 0 {
			fmt.Println("no reviews")
			return nil
		}
		printReviewListTable(reviews)
		return nil
	},
}

func init() {
	reviewAddCmd.Flags().String("sha", "", "commit SHA the review applies to")
	reviewAddCmd.Flags().String("reviewer", "", "reviewer name (defaults to --actor)")
	reviewAddCmd.MarkFlagRequired("sha")

	reviewCmd.AddCommand(reviewAddCmd)
	reviewCmd.AddCommand(reviewListCmd)
}
