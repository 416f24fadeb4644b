package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/aurum/internal/app"
)

var regimeFile string

var cotCmd = &cobra.Command{
	Use:   "cot",
	Short: "Download CFTC managed money positioning for gold",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			n, err := a.COTService().Run(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			logger.Info().Int("rows", n).Msg("COT indicator updated")
			return nil
		})
	},
}

var seedRegimeCmd = &cobra.Command{
	Use:   "seed-regime",
	Short: "Write the Fed policy regime rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			_, err := a.SeedRegimes(ctx, regimeFile)
			return err
		})
	},
}

func init() {
	seedRegimeCmd.Flags().StringVar(&regimeFile, "file", "", "YAML file of regime rows (default: built-in table)")
}

var watchlistCmd = &cobra.Command{
	Use:   "watchlist [code...]",
	Short: "Add codes to the valuation watchlist and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			watchlist := a.StorageManager.WatchlistStorage()
			for _, code := range args {
				if err := watchlist.AddWatchlistCode(ctx, code); err != nil {
					return err
				}
			}
			codes, err := watchlist.GetWatchlistCodes(ctx)
			if err != nil {
				return err
			}
			for _, code := range codes {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			return nil
		})
	},
}
