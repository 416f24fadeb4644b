package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/aurum/internal/app"
)

var (
	purgeDryRun bool
	purgeHours  int
	enrichLimit int
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete stored records that repeat an earlier story",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), runPurge)
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fill missing price snapshots and signal scores on stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), runEnrich)
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeDryRun, "dry-run", false, "Report duplicates without deleting them")
	purgeCmd.Flags().IntVar(&purgeHours, "hours", -1, "Only scan the last N hours; 0 scans everything (default: dedup.window_hours)")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "Maximum records to scan; 0 scans all")
}

func runPurge(ctx context.Context, a *app.App) error {
	purger, err := a.Purger(ctx)
	if err != nil {
		return err
	}

	hours := purgeHours
	if hours < 0 {
		hours = a.Config.Dedup.WindowHours
	}
	var from time.Time
	if hours > 0 {
		from = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	}

	res, err := purger.Run(ctx, from, time.Time{}, purgeDryRun)
	if err != nil {
		return err
	}

	logger.Info().
		Bool("dry_run", purgeDryRun).
		Int("scanned", res.Scanned).
		Int("duplicates", res.Duplicates).
		Int("deleted", res.Deleted).
		Int("failed_batches", res.FailedBatches).
		Msg("Purge complete")
	return nil
}

func runEnrich(ctx context.Context, a *app.App) error {
	res, err := a.Enricher(enrichLimit).Run(ctx)
	if err != nil {
		return err
	}

	logger.Info().
		Int("scanned", res.Scanned).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Int("months", res.Months).
		Msg("Enrichment complete")
	return nil
}
