package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"archivist/internal/config"
	"archivist/internal/ipc"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var title string

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload documents into the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title != "" && len(args) > 1 {
				return fmt.Errorf("--title applies to a single file; got %d paths", len(args))
			}
			return ctx.withClient(func(client *ipc.Client) error {
				stdout := cmd.OutOrStdout()
				for _, arg := range args {
					path, err := config.ExpandPath(arg)
					if err != nil {
						return err
					}
					resp, err := client.Upload(kind, title, path)
					if err != nil {
						return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
					}
					if resp.IsDuplicate {
						fmt.Fprintf(stdout, "Already in library as %s (%s)\n", resp.Item.ID, resp.Item.Title)
						continue
					}
					fmt.Fprintf(stdout, "Uploaded %s as %s\n", filepath.Base(path), resp.Item.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "document", "Item kind (book, document, plan)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Item title (defaults to the file name)")

	cmd.RegisterFlagCompletionFunc("kind", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		kinds := []string{"book", "document", "plan"}
		matches := make([]string, 0, len(kinds))
		for _, k := range kinds {
			if strings.HasPrefix(k, toComplete) {
				matches = append(matches, k)
			}
		}
		return matches, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}
