package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/app"
	"github.com/ternarybob/aurum/internal/common"
)

var (
	configFiles []string
	logLevel    string

	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "aurum",
	Short:         "News intelligence ingestion and enrichment for gold",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		// Auto-discover config file if not specified
		if len(configFiles) == 0 {
			if _, err := os.Stat("aurum.toml"); err == nil {
				configFiles = append(configFiles, "aurum.toml")
			} else if _, err := os.Stat("deployments/local/aurum.toml"); err == nil {
				configFiles = append(configFiles, "deployments/local/aurum.toml")
			}
		}

		var err error
		config, err = common.LoadFromFiles(configFiles...)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			config.Logging.Level = logLevel
		}

		logger = common.InitLogger(config)
		common.PrintBanner(common.GetVersion())

		logger.Info().
			Strs("config_files", configFiles).
			Str("environment", config.Environment).
			Str("command", cmd.Name()).
			Msg("Configuration loaded")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(liveCmd, backfillCmd, purgeCmd, enrichCmd, cotCmd, seedRegimeCmd, watchlistCmd, reportCmd, versionCmd)
}

// withApp opens the application for the command and closes it afterwards
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close application")
		}
	}()
	return fn(ctx, a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("Command failed")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}
