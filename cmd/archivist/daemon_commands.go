package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/api"
	"archivist/internal/daemonctl"
	"archivist/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the archivist daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.AlreadyRunning {
				fmt.Fprintln(stdout, "Daemon already running")
				return nil
			}
			if result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			} else {
				fmt.Fprintln(stdout, "Daemon started")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the archivist daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.Stop(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit gracefully, killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the archivist daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			_, stopErr := daemonctl.Stop(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if stopErr != nil && !errors.Is(stopErr, daemonctl.ErrDaemonNotRunning) {
				return stopErr
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}
			if result.AlreadyRunning {
				fmt.Fprintln(stdout, "Daemon already running")
				return nil
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and library status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if statusJSON {
					return writeJSON(cmd, status)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				runningKind := statusError
				if status.Running {
					runningKind = statusOK
				}
				fmt.Fprintln(stdout, renderStatusLine("Running", runningKind, yesNo(status.Running), colorize))
				fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Workers", statusInfo, strconv.Itoa(status.Workers), colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Paths", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Catalog", statusInfo, status.CatalogDBPath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Storage", statusInfo, status.StorageDir, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Lock file", statusInfo, status.LockPath, colorize))
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Library", colorize) {
					fmt.Fprintln(stdout, line)
				}
				rows := buildHealthRows(status.Health)
				if len(rows) == 0 {
					fmt.Fprintln(stdout, "Library is empty")
					return nil
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit machine-readable output")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func buildHealthRows(health api.HealthSummary) [][]string {
	if health.Total == 0 {
		return nil
	}
	type bucket struct {
		label string
		count int
	}
	buckets := []bucket{
		{"Pending", health.Pending},
		{"Processing", health.Processing},
		{"Review", health.Review},
		{"Failed", health.Failed},
		{"Published", health.Published},
	}
	rows := make([][]string, 0, len(buckets)+1)
	for _, b := range buckets {
		if b.count == 0 {
			continue
		}
		rows = append(rows, []string{b.label, strconv.Itoa(b.count)})
	}
	rows = append(rows, []string{"Total", strconv.Itoa(health.Total)})
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	// archivistd is expected to sit alongside the CLI binary.
	return filepath.Join(filepath.Dir(exe), "archivistd"), nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
