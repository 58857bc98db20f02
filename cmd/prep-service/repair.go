package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"prep-service/internal/config"
	"prep-service/internal/logger"
	"prep-service/internal/reconcile"
)

func newRepairCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "repair-vehicles",
		Short: "Repair preparations whose vehicle reference no longer resolves",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			appLogger := logger.New(cfg.Environment)

			mongoClient, err := reconcile.Connect(ctx, cfg.Reconcile.MongoURI)
			if err != nil {
				return err
			}
			defer func() { _ = mongoClient.Disconnect(context.Background()) }()

			runner := reconcile.NewRunner(mongoClient.Database(cfg.Reconcile.MongoDatabase), cfg.Reconcile.LockPath, appLogger)
			report, err := runner.Run(ctx, dryRun)
			if err != nil {
				if errors.Is(err, reconcile.ErrAlreadyRunning) {
					return fmt.Errorf("%w (lock %s)", err, cfg.Reconcile.LockPath)
				}
				return err
			}

			printReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the repairs without writing them")
	return cmd
}

func printReport(cmd *cobra.Command, report *reconcile.Report) {
	out := cmd.OutOrStdout()

	if len(report.Decisions) > 0 {
		decisions := table.NewWriter()
		decisions.SetStyle(table.StyleRounded)
		decisions.AppendHeader(table.Row{"Preparation", "Vehicle", "Action", "New vehicle", "Reason"})
		for _, d := range report.Decisions {
			decisions.AppendRow(table.Row{d.PreparationID, orDash(d.VehicleID), d.Action, orDash(d.NewVehicleID), d.Reason})
		}
		fmt.Fprintln(out, decisions.Render())
	}

	s := report.Summary
	totals := table.NewWriter()
	totals.SetStyle(table.StyleRounded)
	totals.AppendHeader(table.Row{"Scanned", "Repointed", "Refreshed", "Placeholders", "Kept", "Untouched"})
	totals.AppendRow(table.Row{
		humanize.Comma(int64(s.Scanned)),
		humanize.Comma(int64(s.Repointed)),
		humanize.Comma(int64(s.Refreshed)),
		humanize.Comma(int64(s.Placeholders)),
		humanize.Comma(int64(s.Kept)),
		humanize.Comma(int64(s.Untouched)),
	})
	counts := make([]table.ColumnConfig, 6)
	for i := range counts {
		counts[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignRight, AlignHeader: text.AlignLeft}
	}
	totals.SetColumnConfigs(counts)
	fmt.Fprintln(out, totals.Render())

	mode := "applied"
	if report.DryRun {
		mode = "dry run, nothing written"
	}
	fmt.Fprintf(out, "Finished in %s (%s), started %s\n", report.Duration.Round(time.Millisecond), mode, humanize.Time(report.Started))
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
