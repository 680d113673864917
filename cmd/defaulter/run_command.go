package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"defaulter/internal/daemonrun"
	"defaulter/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var partial bool
	var clean bool
	var dryRun bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync pass over every configured library",
		Long: "Run one sync pass in the foreground. A clean run visits every item; a partial\n" +
			"run only visits items updated since the previous run of this process, so from\n" +
			"the CLI it behaves like a clean run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if partial && clean {
				return errors.New("--partial and --clean are mutually exclusive")
			}
			mode := workflow.ModeClean
			if partial {
				mode = workflow.ModePartial
			}
			return ctx.withLock(func() error {
				return ctx.withSession(cmd, func(session *daemonrun.Session) error {
					if err := session.Manager.Prepare(cmd.Context()); err != nil {
						return err
					}
					report, runErr := session.Manager.Run(cmd.Context(), workflow.RunOptions{Mode: mode, DryRun: dryRun})
					if report != nil {
						var err error
						if jsonOutput {
							err = writeJSON(cmd, report)
						} else {
							err = printRunReport(cmd.OutOrStdout(), report)
						}
						if err != nil {
							return err
						}
					}
					return runErr
				})
			})
		},
	}

	cmd.Flags().BoolVar(&partial, "partial", false, "Only visit items updated since the last run")
	cmd.Flags().BoolVar(&clean, "clean", false, "Visit every item (default)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve and audit without changing Plex")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
	return cmd
}

func printRunReport(out io.Writer, report *workflow.RunReport) error {
	colorize := shouldColorize(out)
	pairs := [][2]string{
		{"Run", report.ID},
		{"Mode", titleLabel(string(report.Mode))},
		{"Dry run", yesNo(report.DryRun)},
		{"Result", statusLabel(report.Result, colorize)},
		{"Started", formatTime(report.StartedAt)},
		{"Finished", formatTime(report.FinishedAt)},
		{"Processed", strconv.Itoa(report.Stats.Processed)},
		{"Succeeded", strconv.Itoa(report.Stats.Succeeded)},
		{"Failed", strconv.Itoa(report.Stats.Failed)},
		{"Skipped", strconv.Itoa(report.Stats.Skipped)},
	}
	if report.Error != "" {
		pairs = append(pairs, [2]string{"Error", report.Error})
	}
	for _, file := range report.AuditFiles {
		pairs = append(pairs, [2]string{"Audit file", file})
	}
	if _, err := fmt.Fprintln(out, renderKeyValues(pairs)); err != nil {
		return err
	}
	if len(report.Stats.SkippedByViewer) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(report.Stats.SkippedByViewer))
	for _, viewer := range slices.Sorted(maps.Keys(report.Stats.SkippedByViewer)) {
		rows = append(rows, []string{viewer, strconv.Itoa(report.Stats.SkippedByViewer[viewer])})
	}
	_, err := fmt.Fprintln(out, renderTable([]string{"Viewer", "Skipped"}, rows, []columnAlignment{alignLeft, alignRight}))
	return err
}
