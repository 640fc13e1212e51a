package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"archivist/internal/api"
	"archivist/internal/ipc"
)

func newItemCommand(ctx *commandContext) *cobra.Command {
	itemCmd := &cobra.Command{
		Use:   "item",
		Short: "Inspect library items",
	}

	itemCmd.AddCommand(newItemListCommand(ctx))
	itemCmd.AddCommand(newItemShowCommand(ctx))

	return itemCmd
}

func newItemListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var listJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List library items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ItemList(listStatuses)
				if err != nil {
					return err
				}
				if listJSON {
					return writeJSON(cmd, resp)
				}
				if len(resp.Items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Library is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Kind", "Title", "Status", "Step", "Conf", "Updated"},
					buildItemListRows(resp.Items),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by item status (repeatable)")
	cmd.Flags().BoolVar(&listJSON, "json", false, "Emit machine-readable output")
	return cmd
}

func buildItemListRows(items []api.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		conf := ""
		if item.Confidence > 0 {
			conf = strconv.Itoa(item.Confidence)
		}
		rows = append(rows, []string{
			shortID(item.ID),
			item.Kind,
			truncate(item.Title, 40),
			item.Status,
			item.CurrentStep,
			conf,
			shortTimestamp(item.UpdatedAt),
		})
	}
	return rows
}

func newItemShowCommand(ctx *commandContext) *cobra.Command {
	var showJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item with its files, history, and reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ItemDescribe(args[0])
				if err != nil {
					return err
				}
				if showJSON {
					return writeJSON(cmd, resp)
				}
				renderItemDetail(cmd, resp.Detail)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showJSON, "json", false, "Emit machine-readable output")
	return cmd
}

func renderItemDetail(cmd *cobra.Command, detail api.ItemDetail) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)
	item := detail.Item

	for _, line := range renderSectionHeader("Item", colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("ID", statusInfo, item.ID, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Kind", statusInfo, item.Kind, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Title", statusInfo, item.Title, colorize))
	if item.Author != "" {
		fmt.Fprintln(stdout, renderStatusLine("Author", statusInfo, item.Author, colorize))
	}
	if item.Year > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Year", statusInfo, strconv.Itoa(item.Year), colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Status", itemStatusKind(item.Status), item.Status, colorize))
	if item.CurrentStep != "" {
		fmt.Fprintln(stdout, renderStatusLine("Current step", statusInfo, item.CurrentStep, colorize))
	}
	if item.Confidence > 0 || item.Completeness > 0 {
		scores := fmt.Sprintf("confidence %d, completeness %d", item.Confidence, item.Completeness)
		fmt.Fprintln(stdout, renderStatusLine("Scores", statusInfo, scores, colorize))
	}
	if len(item.Categories) > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Categories", statusInfo, strings.Join(item.Categories, ", "), colorize))
	}
	if item.ErrorMessage != "" {
		fmt.Fprintln(stdout, renderStatusLine("Error", statusError, item.ErrorMessage, colorize))
	}
	if item.Summary != "" {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, item.Summary)
	}

	if len(detail.SourceFiles) > 0 {
		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Source Files", colorize) {
			fmt.Fprintln(stdout, line)
		}
		rows := make([][]string, 0, len(detail.SourceFiles))
		for _, file := range detail.SourceFiles {
			rows = append(rows, []string{
				file.OriginalName,
				file.MediaType,
				formatSize(file.SizeBytes),
				shortID(file.ContentHash),
			})
		}
		fmt.Fprintln(stdout, renderTable(
			[]string{"Name", "Type", "Size", "Hash"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	if len(detail.Derivatives) > 0 {
		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Derivatives", colorize) {
			fmt.Fprintln(stdout, line)
		}
		rows := make([][]string, 0, len(detail.Derivatives))
		for _, deriv := range detail.Derivatives {
			rows = append(rows, []string{
				deriv.Kind,
				deriv.GeneratorName,
				deriv.GeneratorVersion,
				formatSize(deriv.SizeBytes),
			})
		}
		fmt.Fprintln(stdout, renderTable(
			[]string{"Kind", "Generator", "Version", "Size"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
		))
	}

	if len(detail.Log) > 0 {
		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Processing Log", colorize) {
			fmt.Fprintln(stdout, line)
		}
		rows := make([][]string, 0, len(detail.Log))
		for _, entry := range detail.Log {
			rows = append(rows, []string{
				shortTimestamp(entry.CreatedAt),
				entry.Step,
				entry.Outcome,
				fmt.Sprintf("%dms", entry.DurationMS),
				truncate(entry.Message, 60),
			})
		}
		fmt.Fprintln(stdout, renderTable(
			[]string{"Time", "Step", "Outcome", "Duration", "Message"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	if len(detail.Reviews) > 0 {
		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("Reviews", colorize) {
			fmt.Fprintln(stdout, line)
		}
		rows := make([][]string, 0, len(detail.Reviews))
		for _, review := range detail.Reviews {
			resolved := review.Resolution
			if resolved == "" {
				resolved = "open"
			}
			rows = append(rows, []string{
				strconv.FormatInt(review.ID, 10),
				truncate(review.Reason, 50),
				resolved,
				review.ResolvedBy,
			})
		}
		fmt.Fprintln(stdout, renderTable(
			[]string{"ID", "Reason", "Resolution", "By"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
		))
	}
}

func itemStatusKind(status string) statusKind {
	switch status {
	case "published":
		return statusOK
	case "review":
		return statusWarn
	case "failed":
		return statusError
	default:
		return statusInfo
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}

// shortTimestamp trims an RFC3339 timestamp down to a minute-granularity
// display form. Unparseable values pass through untouched.
func shortTimestamp(value string) string {
	if len(value) >= 16 && value[10] == 'T' {
		return value[:10] + " " + value[11:16]
	}
	return value
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
