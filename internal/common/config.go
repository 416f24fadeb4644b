package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/aurum/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	LLM         LLMConfig      `toml:"llm"`
	Gemini      GeminiConfig   `toml:"gemini"`
	Claude      ClaudeConfig   `toml:"claude"`
	DeepSeek    DeepSeekConfig `toml:"deepseek"`
	EODHD       EODHDConfig    `toml:"eodhd"`
	Sources     SourcesConfig  `toml:"sources"`
	Dedup       DedupConfig    `toml:"dedup"`
	Market      MarketConfig   `toml:"market"`
	Signals     SignalsConfig  `toml:"signals"`
	Pipeline    PipelineConfig `toml:"pipeline"`
	Backfill    BackfillConfig `toml:"backfill"`
	Notify      NotifyConfig   `toml:"notify"`
	COT         COTConfig      `toml:"cot"`
	Report      ReportConfig   `toml:"report"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Type   string       `toml:"type" validate:"oneof=badger sqlite"` // "badger" (default) or "sqlite"
	Badger BadgerConfig `toml:"badger"`
	SQLite SQLiteConfig `toml:"sqlite"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// SQLiteConfig represents the SQL backend configuration
type SQLiteConfig struct {
	Path string `toml:"path"` // Database file path
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
	Directory  string   `toml:"directory"`   // Log directory, defaults to <exe dir>/logs
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderGemini   LLMProvider = "gemini"
	LLMProviderClaude   LLMProvider = "claude"
	LLMProviderDeepSeek LLMProvider = "deepseek"
)

// LLMConfig chooses the primary and fallback classification providers
type LLMConfig struct {
	Primary        LLMProvider `toml:"primary" validate:"required"`
	Fallback       LLMProvider `toml:"fallback"`          // Empty disables the fallback attempt
	RequestTimeout string      `toml:"request_timeout"`   // Bound on a single provider call (default: "60s")
	BatchSize      int         `toml:"batch_size" validate:"gte=1"`
	CooldownMin    string      `toml:"cooldown_min"`      // Randomized pause between batches, lower bound
	CooldownMax    string      `toml:"cooldown_max"`      // Randomized pause between batches, upper bound
	MaxConcurrency int         `toml:"max_concurrency" validate:"gte=1"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`           // default: "gemini-1.5-flash"
	EmbedModel     string  `toml:"embed_model"`     // default: "gemini-embedding-001"
	EmbedDimension int     `toml:"embed_dimension"` // default: 768
	Temperature    float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

// DeepSeekConfig configures the OpenAI-compatible DeepSeek endpoint
type DeepSeekConfig struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"` // default: "https://api.deepseek.com"
	Model       string  `toml:"model"`    // default: "deepseek-reasoner"
	Temperature float32 `toml:"temperature"`
}

// EODHDConfig configures the market data client
type EODHDConfig struct {
	APIKey    string  `toml:"api_key"`
	BaseURL   string  `toml:"base_url"`
	RateLimit float64 `toml:"rate_limit"` // Requests per second
	Timeout   string  `toml:"timeout"`
}

// SourcesConfig configures the news adapters
type SourcesConfig struct {
	Query          string   `toml:"query"`
	GoogleNews     bool     `toml:"google_news"`
	RSSHub         bool     `toml:"rsshub"`
	RSSHubBaseURL  string   `toml:"rsshub_base_url"`
	RSSHubRoutes   []string `toml:"rsshub_routes"`
	EODHDNews      bool     `toml:"eodhd_news"`
	EODHDTickers   []string `toml:"eodhd_tickers"`
	LiveBatchSize  int      `toml:"live_batch_size" validate:"gte=1"`
	SeenCap        int      `toml:"seen_cap" validate:"gte=1"`
	RSSHubSeenCap  int      `toml:"rsshub_seen_cap" validate:"gte=1"`
	RequestTimeout string   `toml:"request_timeout"`
}

// DedupConfig configures the near-duplicate and semantic gates
type DedupConfig struct {
	HammingThreshold    int     `toml:"hamming_threshold" validate:"gte=1,lte=64"`
	HistorySize         int     `toml:"history_size" validate:"gte=1"`
	SimilarityThreshold float64 `toml:"similarity_threshold" validate:"gt=0,lte=1"`
	SemanticHistory     int     `toml:"semantic_history" validate:"gte=1"`
	Embedder            string  `toml:"embedder" validate:"oneof=terms gemini"`
	PurgeChunkSize      int     `toml:"purge_chunk_size" validate:"gte=1"`
	WindowHours         int     `toml:"window_hours"`
}

// MarketConfig configures asset symbols and horizons for correlation
type MarketConfig struct {
	GoldSymbol        string   `toml:"gold_symbol"`
	DXYSymbol         string   `toml:"dxy_symbol"`
	US10YSymbol       string   `toml:"us10y_symbol"`
	GVZSymbol         string   `toml:"gvz_symbol"`
	Resolution        string   `toml:"resolution"`
	MaxGap            string   `toml:"max_gap"`
	PrefetchPad       string   `toml:"prefetch_pad"`
	LiveLookbackHours int      `toml:"live_lookback_hours"`
	Horizons          []string `toml:"horizons"`
	RequestTimeout    string   `toml:"request_timeout"`
}

// SignalsConfig exposes the clustering and exhaustion windows
type SignalsConfig struct {
	ClusterWindow       string  `toml:"cluster_window"`
	ClusterThreshold    float64 `toml:"cluster_threshold"`
	ExhaustionWindow    string  `toml:"exhaustion_window"`
	ExhaustionHalfLife  string  `toml:"exhaustion_half_life"`
	PercentileWindow    int     `toml:"percentile_window" validate:"gte=1"`
	PercentileMinPeriod int     `toml:"percentile_min_periods" validate:"gte=1"`
}

// PipelineConfig configures live polling
type PipelineConfig struct {
	CheckIntervalMinutes int    `toml:"check_interval_minutes" validate:"gte=1"`
	NotifyMinUrgency     int    `toml:"notify_min_urgency"`
	StateKey             string `toml:"state_key"`
}

// BackfillConfig configures historical replay
type BackfillConfig struct {
	Query             string `toml:"query"`
	StartDate         string `toml:"start_date"`
	EndDate           string `toml:"end_date"`
	CheckpointPath    string `toml:"checkpoint_path"`
	MonthFailurePause string `toml:"month_failure_pause"`
}

// NotifyConfig configures notification channels
type NotifyConfig struct {
	BarkURL        string   `toml:"bark_url"`
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID int64    `toml:"telegram_chat_id"`
	SMTPHost       string   `toml:"smtp_host"`
	SMTPPort       int      `toml:"smtp_port"`
	SMTPUsername   string   `toml:"smtp_username"`
	SMTPPassword   string   `toml:"smtp_password"`
	EmailFrom      string   `toml:"email_from"`
	EmailTo        []string `toml:"email_to"`
	Timeout        string   `toml:"timeout"`
}

// COTConfig configures the CFTC positioning download
type COTConfig struct {
	BaseURL    string `toml:"base_url"`
	MarketCode string `toml:"market_code"`
	MarketName string `toml:"market_name"`
	Years      int    `toml:"years"`
}

// ReportConfig configures the monthly backtest report
type ReportConfig struct {
	OutputDir      string  `toml:"output_dir"`
	InitialCapital float64 `toml:"initial_capital" validate:"gt=0"`
	HoldPeriod     string  `toml:"hold_period"` // Active-trade window used to drop repeated signals
	Email          bool    `toml:"email"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data/aurum",
			},
			SQLite: SQLiteConfig{
				Path: "./data/aurum.db",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		LLM: LLMConfig{
			Primary:        LLMProviderGemini,
			Fallback:       LLMProviderDeepSeek,
			RequestTimeout: "60s",
			BatchSize:      10,
			CooldownMin:    "3s",
			CooldownMax:    "6s",
			MaxConcurrency: 4,
		},
		Gemini: GeminiConfig{
			Model:          "gemini-1.5-flash",
			EmbedModel:     "gemini-embedding-001",
			EmbedDimension: 768,
			Temperature:    0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-3-5-haiku-latest",
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		DeepSeek: DeepSeekConfig{
			BaseURL:     "https://api.deepseek.com",
			Model:       "deepseek-reasoner",
			Temperature: 0.2,
		},
		EODHD: EODHDConfig{
			BaseURL:   "https://eodhd.com/api",
			RateLimit: 10,
			Timeout:   "30s",
		},
		Sources: SourcesConfig{
			Query:         "Donald Trump (Truth Social OR Economy OR Tariff OR Fed OR Gold)",
			GoogleNews:    true,
			RSSHub:        true,
			RSSHubBaseURL: "https://rsshub.app",
			RSSHubRoutes: []string{
				"/truthsocial/user/realDonaldTrump",
				"/bloomberg/news/terminal",
				"/reuters/world/us",
			},
			EODHDTickers:   []string{"XAUUSD.FOREX"},
			LiveBatchSize:  5,
			SeenCap:        1000,
			RSSHubSeenCap:  2000,
			RequestTimeout: "30s",
		},
		Dedup: DedupConfig{
			HammingThreshold:    3,
			HistorySize:         1000,
			SimilarityThreshold: 0.85,
			SemanticHistory:     5000,
			Embedder:            "terms",
			PurgeChunkSize:      500,
			WindowHours:         24,
		},
		Market: MarketConfig{
			GoldSymbol:        "XAUUSD.FOREX",
			DXYSymbol:         "DXY.INDX",
			US10YSymbol:       "US10Y.GBOND",
			GVZSymbol:         "GVZ.INDX",
			Resolution:        "1h",
			MaxGap:            "96h",
			PrefetchPad:       "168h",
			LiveLookbackHours: 48,
			Horizons:          []string{"15m", "1h", "4h", "12h", "24h"},
			RequestTimeout:    "30s",
		},
		Signals: SignalsConfig{
			ClusterWindow:       "60m",
			ClusterThreshold:    3,
			ExhaustionWindow:    "6h",
			ExhaustionHalfLife:  "2h",
			PercentileWindow:    156,
			PercentileMinPeriod: 20,
		},
		Pipeline: PipelineConfig{
			CheckIntervalMinutes: 30,
			NotifyMinUrgency:     7,
			StateKey:             "monitor_state",
		},
		Backfill: BackfillConfig{
			Query:             "Donald Trump (Truth Social OR Economy OR Tariff OR Fed OR Gold)",
			StartDate:         "2025-05-01",
			CheckpointPath:    "./data/backfill_progress.json",
			MonthFailurePause: "30s",
		},
		Notify: NotifyConfig{
			SMTPPort: 587,
			Timeout:  "10s",
		},
		COT: COTConfig{
			BaseURL:    "https://www.cftc.gov/files/dea/history",
			MarketCode: "088691",
			MarketName: "GOLD - COMMODITY EXCHANGE INC.",
			Years:      4,
		},
		Report: ReportConfig{
			OutputDir:      "./reports",
			InitialCapital: 10000,
			HoldPeriod:     "1h",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks struct-level constraints on the loaded configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, d := range []struct{ name, value string }{
		{"llm.request_timeout", c.LLM.RequestTimeout},
		{"llm.cooldown_min", c.LLM.CooldownMin},
		{"llm.cooldown_max", c.LLM.CooldownMax},
		{"market.max_gap", c.Market.MaxGap},
		{"signals.cluster_window", c.Signals.ClusterWindow},
		{"signals.exhaustion_window", c.Signals.ExhaustionWindow},
		{"signals.exhaustion_half_life", c.Signals.ExhaustionHalfLife},
		{"backfill.month_failure_pause", c.Backfill.MonthFailurePause},
		{"report.hold_period", c.Report.HoldPeriod},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid configuration: %s=%q: %w", d.name, d.value, err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AURUM_ENV"); env != "" {
		config.Environment = env
	}

	// Storage configuration
	if storageType := os.Getenv("AURUM_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if badgerPath := os.Getenv("AURUM_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if sqlitePath := os.Getenv("AURUM_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.SQLite.Path = sqlitePath
	}

	// Logging configuration
	if level := os.Getenv("AURUM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("AURUM_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// LLM configuration
	if primary := firstEnv("AURUM_LLM_PRIMARY", "AI_PROVIDER"); primary != "" {
		config.LLM.Primary = LLMProvider(strings.ToLower(primary))
	}
	if fallback, ok := os.LookupEnv("AURUM_LLM_FALLBACK"); ok {
		config.LLM.Fallback = LLMProvider(strings.ToLower(fallback))
	}
	if model := firstEnv("AURUM_GEMINI_MODEL", "GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if model := firstEnv("AURUM_DEEPSEEK_MODEL", "DEEPSEEK_MODEL"); model != "" {
		config.DeepSeek.Model = model
	}
	if baseURL := firstEnv("AURUM_DEEPSEEK_BASE_URL", "DEEPSEEK_BASE_URL"); baseURL != "" {
		config.DeepSeek.BaseURL = baseURL
	}
	if model := os.Getenv("AURUM_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// Sources
	if baseURL := firstEnv("AURUM_RSSHUB_BASE_URL", "RSSHUB_BASE_URL"); baseURL != "" {
		config.Sources.RSSHubBaseURL = baseURL
	}
	if query := os.Getenv("AURUM_QUERY"); query != "" {
		config.Sources.Query = query
	}

	// Dedup
	if threshold := firstEnv("AURUM_SIMILARITY_THRESHOLD", "NEWS_SIMILARITY_THRESHOLD"); threshold != "" {
		if v, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Dedup.SimilarityThreshold = v
		}
	}
	if window := firstEnv("AURUM_DEDUPE_WINDOW_HOURS", "NEWS_DEDUPE_WINDOW_HOURS"); window != "" {
		if v, err := strconv.Atoi(window); err == nil {
			config.Dedup.WindowHours = v
		}
	}

	// Pipeline
	if interval := firstEnv("AURUM_CHECK_INTERVAL_MINUTES", "CHECK_INTERVAL_MINUTES"); interval != "" {
		if v, err := strconv.Atoi(interval); err == nil {
			config.Pipeline.CheckIntervalMinutes = v
		}
	}
	if path := os.Getenv("AURUM_CHECKPOINT_PATH"); path != "" {
		config.Backfill.CheckpointPath = path
	}

	// Notifications
	if bark := firstEnv("AURUM_BARK_URL", "BARK_URL"); bark != "" {
		config.Notify.BarkURL = bark
	}
	if token := firstEnv("AURUM_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"); token != "" {
		config.Notify.TelegramToken = token
	}
	if chatID := firstEnv("AURUM_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"); chatID != "" {
		if v, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			config.Notify.TelegramChatID = v
		}
	}
	if host := firstEnv("AURUM_SMTP_HOST", "SMTP_SERVER"); host != "" {
		config.Notify.SMTPHost = host
	}
	if port := firstEnv("AURUM_SMTP_PORT", "SMTP_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			config.Notify.SMTPPort = v
		}
	}
	if sender := firstEnv("AURUM_EMAIL_SENDER", "EMAIL_SENDER"); sender != "" {
		config.Notify.EmailFrom = sender
		if config.Notify.SMTPUsername == "" {
			config.Notify.SMTPUsername = sender
		}
	}
	if password := firstEnv("AURUM_EMAIL_PASSWORD", "EMAIL_PASSWORD"); password != "" {
		config.Notify.SMTPPassword = password
	}
	if receiver := firstEnv("AURUM_EMAIL_RECEIVER", "EMAIL_RECEIVER"); receiver != "" {
		config.Notify.EmailTo = strings.Split(receiver, ",")
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables → KV store → config fallback → error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"AURUM_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"anthropic_api_key": {"AURUM_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"deepseek_api_key":  {"AURUM_DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY"},
		"eodhd_api_key":     {"AURUM_EODHD_API_KEY", "EODHD_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		if v := firstEnv(envVarNames...); v != "" {
			return v, nil
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// MustDuration parses a duration string, returning def when empty or invalid
func MustDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
