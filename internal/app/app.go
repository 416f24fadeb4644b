package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/eodhd"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/services/classifier"
	"github.com/ternarybob/aurum/internal/services/dedup"
	"github.com/ternarybob/aurum/internal/services/indicators"
	"github.com/ternarybob/aurum/internal/services/llm"
	"github.com/ternarybob/aurum/internal/services/market"
	"github.com/ternarybob/aurum/internal/services/notify"
	"github.com/ternarybob/aurum/internal/services/pipeline"
	"github.com/ternarybob/aurum/internal/services/report"
	"github.com/ternarybob/aurum/internal/services/scheduler"
	"github.com/ternarybob/aurum/internal/services/sources"
	"github.com/ternarybob/aurum/internal/signals"
	"github.com/ternarybob/aurum/internal/storage"
)

// App holds the shared components. Classification providers and sources are
// built on demand so commands that do not need them run without API keys.
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	EODHD      *eodhd.Client
	Prefetcher *market.Prefetcher
	Engine     *signals.Engine
	Processor  *pipeline.Processor
	Dispatcher *notify.Dispatcher
	Scheduler  *scheduler.Service
}

// New initializes storage and the market, signal and notification layers
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	sm, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = sm

	kv := sm.KeyValueStorage()

	eodhdKey, err := common.ResolveAPIKey(ctx, kv, "eodhd_api_key", config.EODHD.APIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("EODHD key missing, price snapshots and EODHD news will be empty")
	}
	opts := []eodhd.ClientOption{eodhd.WithLogger(logger)}
	if config.EODHD.BaseURL != "" {
		opts = append(opts, eodhd.WithBaseURL(config.EODHD.BaseURL))
	}
	if config.EODHD.RateLimit > 0 {
		opts = append(opts, eodhd.WithRateLimit(config.EODHD.RateLimit))
	}
	a.EODHD = eodhd.NewClient(eodhdKey, opts...)

	a.Prefetcher = market.NewPrefetcher(a.EODHD, &config.Market, logger)
	a.Engine = signals.NewEngine(&config.Signals)
	a.Processor = pipeline.NewProcessor(
		sm.IntelligenceStorage(),
		a.Prefetcher,
		market.NewCorrelator(market.ParseHorizons(config.Market.Horizons)),
		a.Engine,
		logger,
	)
	a.Dispatcher = notify.NewDispatcherFromConfig(&config.Notify, logger)
	a.Scheduler = scheduler.NewService(kv, logger)

	logger.Debug().
		Str("storage_type", config.Storage.Type).
		Str("llm_primary", string(config.LLM.Primary)).
		Str("llm_fallback", string(config.LLM.Fallback)).
		Int("channels", len(a.Dispatcher.Channels())).
		Msg("Application initialized")

	return a, nil
}

// Close stops the scheduler and closes storage
func (a *App) Close() error {
	if a.Scheduler != nil && a.Scheduler.IsRunning() {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	return nil
}

// Orchestrator builds the primary and fallback providers
func (a *App) Orchestrator(ctx context.Context) (*classifier.Orchestrator, error) {
	kv := a.StorageManager.KeyValueStorage()

	primary, err := llm.NewProvider(ctx, a.Config.LLM.Primary, a.Config, kv, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary provider: %w", err)
	}

	fallback, err := llm.NewProvider(ctx, a.Config.LLM.Fallback, a.Config, kv, a.Logger)
	if err != nil {
		// Running without a fallback beats not running
		a.Logger.Warn().Err(err).Str("provider", string(a.Config.LLM.Fallback)).Msg("Fallback provider unavailable")
		fallback = nil
	}

	return classifier.NewOrchestrator(primary, fallback, classifier.Options{
		Timeout:        common.MustDuration(a.Config.LLM.RequestTimeout, 60*time.Second),
		BatchSize:      a.Config.LLM.BatchSize,
		CooldownMin:    common.MustDuration(a.Config.LLM.CooldownMin, 3*time.Second),
		CooldownMax:    common.MustDuration(a.Config.LLM.CooldownMax, 6*time.Second),
		MaxConcurrency: a.Config.LLM.MaxConcurrency,
	}, a.Logger), nil
}

// Sources builds the enabled adapters behind a MultiSource
func (a *App) Sources() (*sources.MultiSource, error) {
	cfg := a.Config.Sources
	timeout := common.MustDuration(cfg.RequestTimeout, 30*time.Second)

	var adapters []interfaces.SourceAdapter
	if cfg.GoogleNews {
		adapters = append(adapters, sources.NewGoogleNewsAdapter("", dedup.NewBoundedSet(cfg.SeenCap), cfg.LiveBatchSize, timeout, a.Logger))
	}
	if cfg.RSSHub {
		adapters = append(adapters, sources.NewRSSHubAdapter(cfg.RSSHubBaseURL, cfg.RSSHubRoutes, dedup.NewBoundedSet(cfg.RSSHubSeenCap), cfg.LiveBatchSize, timeout, a.Logger))
	}
	if cfg.EODHDNews {
		adapters = append(adapters, sources.NewEODHDNewsAdapter(a.EODHD, cfg.EODHDTickers, dedup.NewBoundedSet(cfg.SeenCap), cfg.LiveBatchSize, a.Logger))
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no news sources enabled")
	}
	return sources.NewMultiSource(adapters, timeout, a.Logger), nil
}

func (a *App) gate() *dedup.Deduplicator {
	return dedup.NewDeduplicator(a.StorageManager.IntelligenceStorage(), a.Config.Dedup.HistorySize, a.Config.Dedup.HammingThreshold, a.Logger)
}

// LiveRunner builds the scheduled polling runner
func (a *App) LiveRunner(ctx context.Context) (*pipeline.LiveRunner, error) {
	src, err := a.Sources()
	if err != nil {
		return nil, err
	}
	orchestrator, err := a.Orchestrator(ctx)
	if err != nil {
		return nil, err
	}

	return pipeline.NewLiveRunner(
		src,
		a.gate(),
		orchestrator,
		a.Processor,
		a.Dispatcher,
		a.StorageManager.KeyValueStorage(),
		a.Scheduler,
		pipeline.LiveOptions{
			Query:           a.Config.Sources.Query,
			IntervalMinutes: a.Config.Pipeline.CheckIntervalMinutes,
			Lookback:        time.Duration(a.Config.Market.LiveLookbackHours) * time.Hour,
			MinUrgency:      a.Config.Pipeline.NotifyMinUrgency,
			StateKey:        a.Config.Pipeline.StateKey,
		},
		a.Logger,
	), nil
}

// BackfillRunner builds the historical replay. start and end override the
// configured dates when non-zero.
func (a *App) BackfillRunner(ctx context.Context, start, end time.Time) (*pipeline.BackfillRunner, error) {
	cfg := a.Config.Backfill

	if start.IsZero() {
		t, err := time.Parse(time.DateOnly, cfg.StartDate)
		if err != nil {
			return nil, fmt.Errorf("invalid backfill.start_date %q: %w", cfg.StartDate, err)
		}
		start = t
	}
	if end.IsZero() && cfg.EndDate != "" {
		t, err := time.Parse(time.DateOnly, cfg.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid backfill.end_date %q: %w", cfg.EndDate, err)
		}
		end = t
	}

	src, err := a.Sources()
	if err != nil {
		return nil, err
	}
	orchestrator, err := a.Orchestrator(ctx)
	if err != nil {
		return nil, err
	}

	return pipeline.NewBackfillRunner(
		src,
		a.gate(),
		orchestrator,
		a.Processor,
		pipeline.NewCheckpointStore(cfg.CheckpointPath),
		pipeline.BackfillOptions{
			Query:        cfg.Query,
			Start:        start,
			End:          end,
			BatchSize:    a.Config.LLM.BatchSize,
			FailurePause: common.MustDuration(cfg.MonthFailurePause, 30*time.Second),
		},
		a.Logger,
	), nil
}

// Enricher builds the enrichment migration
func (a *App) Enricher(limit int) *pipeline.Enricher {
	return pipeline.NewEnricher(a.StorageManager.IntelligenceStorage(), a.Processor, limit, a.Logger)
}

// Purger builds the semantic purge with the configured embedder
func (a *App) Purger(ctx context.Context) (*dedup.Purger, error) {
	cfg := a.Config.Dedup

	var embedder interfaces.Embedder = dedup.NewTermVectorEmbedder(0)
	if cfg.Embedder == "gemini" {
		key, err := common.ResolveAPIKey(ctx, a.StorageManager.KeyValueStorage(), "gemini_api_key", a.Config.Gemini.APIKey)
		if err != nil {
			return nil, fmt.Errorf("gemini embedder: %w", err)
		}
		gemini, err := llm.NewGeminiEmbedder(ctx, key, &a.Config.Gemini)
		if err != nil {
			return nil, fmt.Errorf("gemini embedder: %w", err)
		}
		embedder = gemini
	}

	return dedup.NewPurger(a.StorageManager.IntelligenceStorage(), embedder, cfg.SimilarityThreshold, cfg.PurgeChunkSize, cfg.SemanticHistory, a.Logger), nil
}

// COTService builds the CFTC positioning downloader
func (a *App) COTService() *indicators.COTService {
	return indicators.NewCOTService(&a.Config.COT, &a.Config.Signals, a.StorageManager.IndicatorStorage(), a.Logger)
}

// SeedRegimes writes the Fed regime rows from path, or the defaults
func (a *App) SeedRegimes(ctx context.Context, path string) (int, error) {
	return indicators.SeedRegimes(ctx, a.StorageManager.IndicatorStorage(), path, a.Logger)
}

// ReportGenerator builds the monthly report generator
func (a *App) ReportGenerator() *report.Generator {
	return report.NewGenerator(
		a.StorageManager.IntelligenceStorage(),
		a.Engine,
		a.Config.Report.InitialCapital,
		common.MustDuration(a.Config.Report.HoldPeriod, time.Hour),
		a.Logger,
	)
}

// ReportPublisher writes reports to the output directory and mails them
// through the email channel when one is configured
func (a *App) ReportPublisher() *report.Publisher {
	var mailer report.Mailer
	if email := a.Dispatcher.Email(); email != nil {
		mailer = email
	}
	return report.NewPublisher(a.Config.Report.OutputDir, mailer, a.Logger)
}
