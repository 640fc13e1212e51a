package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"archivist/internal/ipc"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id]...",
		Short: "Requeue failed items (all failed items when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RetryFailed(args)
				if err != nil {
					return err
				}
				if resp.Updated == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed items to retry")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed items\n", resp.Updated)
				return nil
			})
		},
	}
}

func newKickCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "kick <id>",
		Short: "Make an item eligible for immediate pickup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ItemKick(args[0])
				if err != nil {
					return err
				}
				if !resp.Kicked {
					return fmt.Errorf("item %s was not kicked", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s queued for pickup\n", args[0])
				return nil
			})
		},
	}
}
