package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/aurum/internal/app"
	"github.com/ternarybob/aurum/internal/services/report"
)

var (
	reportMonth string
	reportEmail bool
	reportOut   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build the monthly backtest report (markdown, HTML and PDF)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), runReport)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportMonth, "month", "", "Month to report, YYYY-MM (default: previous month)")
	reportCmd.Flags().BoolVar(&reportEmail, "email", false, "Email the report (also enabled by report.email)")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "Output directory (default: report.output_dir)")
}

func runReport(ctx context.Context, a *app.App) error {
	now := time.Now().UTC()
	month := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	if reportMonth != "" {
		m, err := report.ParseMonth(reportMonth)
		if err != nil {
			return err
		}
		month = m
	}
	if reportOut != "" {
		a.Config.Report.OutputDir = reportOut
	}

	rep, err := a.ReportGenerator().Build(ctx, month)
	if err != nil {
		return err
	}

	out, err := a.ReportPublisher().Publish(ctx, rep, reportEmail || a.Config.Report.Email)
	if err != nil {
		return err
	}

	logger.Info().
		Str("title", out.Title).
		Int("records", len(rep.Rows)).
		Int("pdf_bytes", len(out.PDF)).
		Msg("Report complete")
	return nil
}
