package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"defaulter/internal/audit"
	"defaulter/internal/update"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect recorded runs and viewer outcomes",
	}
	auditCmd.AddCommand(newAuditRunsCommand(ctx))
	auditCmd.AddCommand(newAuditOutcomesCommand(ctx))
	return auditCmd
}

func (c *commandContext) withStore(fn func(*audit.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := audit.OpenFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newAuditRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *audit.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					if runs == nil {
						runs = []audit.Run{}
					}
					return writeJSON(cmd, runs)
				}
				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")
	return cmd
}

func printRuns(out io.Writer, runs []audit.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No runs recorded")
		return err
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		finished := "-"
		if run.FinishedAt != nil {
			finished = formatTime(*run.FinishedAt)
		}
		mode := titleLabel(run.Mode)
		if run.DryRun {
			mode += " (dry run)"
		}
		rows = append(rows, []string{
			run.ID,
			mode,
			statusLabel(run.Result, colorize),
			formatTime(run.StartedAt),
			finished,
			strconv.Itoa(run.Processed),
			strconv.Itoa(run.Succeeded),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Skipped),
		})
	}
	_, err := fmt.Fprintln(out, renderTable(
		[]string{"Run", "Mode", "Result", "Started", "Finished", "Processed", "Succeeded", "Failed", "Skipped"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
	return err
}

func newAuditOutcomesCommand(ctx *commandContext) *cobra.Command {
	var query audit.OutcomeQuery
	var status string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "List viewer outcomes, optionally for one run, viewer or status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				parsed, err := parseStatus(status)
				if err != nil {
					return err
				}
				query.Status = parsed
			}
			return ctx.withStore(func(store *audit.Store) error {
				records, err := store.ListOutcomes(cmd.Context(), query)
				if err != nil {
					return err
				}
				if jsonOutput {
					if records == nil {
						records = []update.Record{}
					}
					return writeJSON(cmd, records)
				}
				return printOutcomes(cmd.OutOrStdout(), records)
			})
		},
	}

	cmd.Flags().StringVar(&query.RunID, "run", "", "Only outcomes of this run id")
	cmd.Flags().StringVar(&query.Viewer, "viewer", "", "Only outcomes of this viewer")
	cmd.Flags().StringVar(&status, "status", "", "Only outcomes with this status (success, skipped, error, dry_run)")
	cmd.Flags().IntVarP(&query.Limit, "limit", "n", 100, "Maximum number of outcomes")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print outcomes as JSON")
	return cmd
}

func parseStatus(value string) (update.Status, error) {
	switch status := update.Status(value); status {
	case update.StatusSuccess, update.StatusSkipped, update.StatusError, update.StatusDryRun:
		return status, nil
	default:
		return "", fmt.Errorf("unknown status %q (want success, skipped, error or dry_run)", value)
	}
}

func printOutcomes(out io.Writer, records []update.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No outcomes recorded")
		return err
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		httpStatus := "-"
		if rec.HTTPStatus != nil {
			httpStatus = strconv.Itoa(*rec.HTTPStatus)
		}
		rows = append(rows, []string{
			formatTime(rec.Timestamp),
			rec.Library,
			dash(rec.Title),
			rec.Group,
			rec.Viewer,
			rec.ActionType,
			dash(rec.FromLabel) + " -> " + dash(rec.ToLabel),
			statusLabel(string(rec.Status), colorize),
			dash(rec.Reason),
			httpStatus,
		})
	}
	_, err := fmt.Fprintln(out, renderTable(
		[]string{"Time", "Library", "Title", "Group", "Viewer", "Action", "Change", "Status", "Reason", "HTTP"},
		rows,
		nil,
	))
	return err
}
