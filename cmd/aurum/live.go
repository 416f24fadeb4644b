package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ternarybob/aurum/internal/app"
)

var liveOnce bool

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Poll news sources on a schedule and alert on urgent items",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), runLive)
	},
}

func init() {
	liveCmd.Flags().BoolVar(&liveOnce, "once", false, "Run a single cycle and exit")
}

func runLive(ctx context.Context, a *app.App) error {
	runner, err := a.LiveRunner(ctx)
	if err != nil {
		return err
	}

	if liveOnce {
		if err := runner.LoadState(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to load monitor state, starting fresh")
		}
		res, err := runner.RunCycle(ctx)
		if err != nil {
			return err
		}
		logger.Info().
			Int("fetched", res.Fetched).
			Int("created", res.Created).
			Int("notified", res.Notified).
			Msg("Single cycle finished")
		return nil
	}

	if err := runner.Start(ctx); err != nil {
		return err
	}
	logger.Info().Msg("Live monitor running - press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().Msg("Interrupt signal received, waiting for the current cycle")

	if err := runner.Stop(); err != nil {
		return err
	}
	logger.Info().Msg("Live monitor stopped")
	return nil
}
