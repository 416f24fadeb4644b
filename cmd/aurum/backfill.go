package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/aurum/internal/app"
)

var (
	backfillStart string
	backfillEnd   string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Replay historical news month by month with a resumable checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), runBackfill)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillStart, "start", "", "First day to replay, YYYY-MM-DD (default: backfill.start_date)")
	backfillCmd.Flags().StringVar(&backfillEnd, "end", "", "Last day to replay, YYYY-MM-DD (default: backfill.end_date or today)")
}

func parseDay(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return t, nil
}

func runBackfill(ctx context.Context, a *app.App) error {
	start, err := parseDay("start", backfillStart)
	if err != nil {
		return err
	}
	end, err := parseDay("end", backfillEnd)
	if err != nil {
		return err
	}

	runner, err := a.BackfillRunner(ctx, start, end)
	if err != nil {
		return err
	}

	cp, err := runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		if cp != nil {
			logger.Info().Str("last_date", cp.LastProcessedDate).Msg("Backfill interrupted, rerun to resume")
		}
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info().
		Str("last_date", cp.LastProcessedDate).
		Int("total_processed", cp.TotalProcessed).
		Int("total_succeeded", cp.TotalSucceeded).
		Msg("Backfill complete")
	return nil
}
