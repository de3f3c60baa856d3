package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"provenance/internal/api"
	"provenance/internal/daemonctl"
	"provenance/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the provenance daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			launched, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath(), LogLevel: startLogLevel},
				10*time.Second,
			)
			if err != nil {
				return err
			}
			if !launched {
				fmt.Fprintln(stdout, "Daemon already running")
				return nil
			}
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the provenance daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and registry status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				if !isDaemonDown(err) {
					return wrapDialError(err, ctx.socketPath())
				}
				return emit(cmd, statusJSON, api.DaemonStatus{Running: false}, func(out io.Writer) {
					fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Not running (start it with `provenance start`)", shouldColorize(out)))
				})
			}
			defer client.Close()

			callCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			status, err := client.Status(callCtx)
			if err != nil {
				return fmt.Errorf("daemon status: %w", err)
			}
			health, healthErr := client.DatabaseHealth(callCtx)

			return emit(cmd, statusJSON, status, func(out io.Writer) {
				renderDaemonStatus(out, status, health, healthErr, shouldColorize(out))
			})
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func renderDaemonStatus(out io.Writer, status *ipc.StatusResponse, health *ipc.DatabaseHealthResponse, healthErr error, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Stopping", colorize))
	}
	if status.StartedAt != "" {
		fmt.Fprintln(out, renderStatusLine("Started", statusInfo, status.StartedAt, colorize))
	}
	if status.APIBind != "" {
		fmt.Fprintln(out, renderStatusLine("HTTP API", statusInfo, status.APIBind, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("HTTP API", statusInfo, "disabled", colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range dependencyLines(status.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Registry", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := [][]string{
		{"Backend", status.RegistryBackend},
		{"Records", strconv.FormatUint(status.Registry.Records, 10)},
		{"Last sequence", strconv.FormatUint(status.Registry.LastSequence, 10)},
	}
	if healthErr == nil && health != nil && health.Error == "" {
		rows = append(rows,
			[]string{"Database", health.Path},
			[]string{"Schema version", strconv.Itoa(health.SchemaVersion)},
			[]string{"Integrity", health.Integrity},
		)
	}
	fmt.Fprint(out, renderTable(fieldColumns, rows))
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
