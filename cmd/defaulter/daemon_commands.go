package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"defaulter/internal/daemon"
	"defaulter/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the defaulter daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: ctx.logLevel()})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			bind := strings.TrimSpace(addr)
			if bind == "" {
				bind = cfg.API.Bind
			}
			client, err := daemon.NewClient(bind, cfg.API.Token)
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if errors.Is(err, daemon.ErrAPIUnavailable) {
				if jsonOutput {
					return writeJSON(cmd, daemon.Status{})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			return printStatus(cmd.OutOrStdout(), status)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address (defaults to api.bind)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the status as JSON")
	return cmd
}

func printStatus(out io.Writer, status daemon.Status) error {
	colorize := shouldColorize(out)
	wf := status.Workflow
	state := "idle"
	if wf.Running {
		state = "running"
	}
	pairs := [][2]string{
		{"Daemon", yesNo(status.Running)},
		{"API", dash(status.APIAddress)},
		{"Schedule", dash(status.Schedule)},
		{"Lock", dash(status.LockFilePath)},
		{"Session prepared", yesNo(wf.Prepared)},
		{"Workflow", statusLabel(state, colorize)},
		{"Viewers", strconv.Itoa(wf.Viewers)},
		{"Libraries", dash(strings.Join(wf.Libraries, ", "))},
	}
	if wf.Running {
		pairs = append(pairs, [2]string{"Current processed", strconv.Itoa(wf.Current.Processed)})
	}
	if last := wf.LastRun; last != nil {
		pairs = append(pairs,
			[2]string{"Last run", last.ID},
			[2]string{"Last mode", titleLabel(string(last.Mode))},
			[2]string{"Last result", statusLabel(last.Result, colorize)},
			[2]string{"Last finished", formatTime(last.FinishedAt)},
			[2]string{"Last counts", fmt.Sprintf("%d processed, %d succeeded, %d failed, %d skipped",
				last.Stats.Processed, last.Stats.Succeeded, last.Stats.Failed, last.Stats.Skipped)},
		)
	}
	_, err := fmt.Fprintln(out, renderKeyValues(pairs))
	return err
}
