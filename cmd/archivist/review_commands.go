package main

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"archivist/internal/ipc"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Manage the human review queue",
	}

	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewResolveCommand(ctx))

	return reviewCmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	var listJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open review entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReviewList()
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd, resp)
				}
				if len(resp.Reviews) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Review queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Reviews))
				for _, review := range resp.Reviews {
					rows = append(rows, []string{
						strconv.FormatInt(review.ID, 10),
						shortID(review.ItemID),
						truncate(review.Reason, 60),
						shortTimestamp(review.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Item", "Reason", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&listJSON, "json", false, "Emit machine-readable output")
	return cmd
}

func newReviewResolveCommand(ctx *commandContext) *cobra.Command {
	var action string
	var note string
	var resolvedBy string

	cmd := &cobra.Command{
		Use:   "resolve <review-id>",
		Short: "Resolve a review entry",
		Long: `Resolve a review entry with one of three decisions:

  approve  publish the item as-is
  reject   mark the item failed
  requeue  send the item back through the pipeline`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reviewID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid review id %q", args[0])
			}
			who := strings.TrimSpace(resolvedBy)
			if who == "" {
				who = currentUserName()
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReviewResolve(reviewID, action, note, who)
				if err != nil {
					return err
				}
				if !resp.Resolved {
					return fmt.Errorf("review %d was not resolved", reviewID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Review %d resolved: %s\n", reviewID, action)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&action, "action", "a", "", "Decision: approve, reject, or requeue")
	cmd.Flags().StringVarP(&note, "note", "n", "", "Optional reviewer note")
	cmd.Flags().StringVar(&resolvedBy, "resolved-by", "", "Reviewer name (defaults to the current user)")
	cmd.MarkFlagRequired("action")
	return cmd
}

func currentUserName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}
