package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check server health",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := relayClient.Health(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]string{"status": status})
			return nil
		}
		fmt.Println(status)
		return nil
	},
}
