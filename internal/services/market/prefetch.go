package market

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

// DefaultPad widens every prefetch window on both sides
const DefaultPad = 7 * 24 * time.Hour

// Prefetcher loads every asset series for a window in parallel
type Prefetcher struct {
	provider   interfaces.PriceSeriesProvider
	symbols    map[models.Asset]string
	resolution string
	pad        time.Duration
	maxGap     time.Duration
	timeout    time.Duration
	logger     arbor.ILogger
}

// NewPrefetcher creates a prefetcher from market configuration
func NewPrefetcher(provider interfaces.PriceSeriesProvider, config *common.MarketConfig, logger arbor.ILogger) *Prefetcher {
	resolution := config.Resolution
	if resolution == "" {
		resolution = "1h"
	}
	return &Prefetcher{
		provider:   provider,
		symbols:    Symbols(config),
		resolution: resolution,
		pad:        common.MustDuration(config.PrefetchPad, DefaultPad),
		maxGap:     common.MustDuration(config.MaxGap, DefaultMaxGap),
		timeout:    common.MustDuration(config.RequestTimeout, 30*time.Second),
		logger:     logger,
	}
}

// Symbols maps each asset to its configured ticker
func Symbols(config *common.MarketConfig) map[models.Asset]string {
	return map[models.Asset]string{
		models.AssetGold:  config.GoldSymbol,
		models.AssetDXY:   config.DXYSymbol,
		models.AssetUS10Y: config.US10YSymbol,
		models.AssetGVZ:   config.GVZSymbol,
	}
}

// FetchWindow loads [start-pad, end+pad] for every asset. An asset that
// fails is logged and left out of the result.
func (p *Prefetcher) FetchWindow(ctx context.Context, start, end time.Time) (map[models.Asset]*PriceSeries, error) {
	from := start.UTC().Add(-p.pad)
	to := end.UTC().Add(p.pad)

	var mu sync.Mutex
	out := make(map[models.Asset]*PriceSeries, len(p.symbols))

	g, gctx := errgroup.WithContext(ctx)
	for _, asset := range models.Assets {
		symbol := p.symbols[asset]
		if symbol == "" {
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, p.timeout)
			defer cancel()

			bars, err := p.provider.Series(callCtx, symbol, from, to, p.resolution)
			if err != nil {
				p.logger.Warn().
					Err(err).
					Str("asset", string(asset)).
					Str("symbol", symbol).
					Msg("Price prefetch failed, asset will be absent")
				return nil
			}
			if len(bars) == 0 {
				p.logger.Debug().Str("symbol", symbol).Msg("No price data in window")
				return nil
			}

			mu.Lock()
			out[asset] = NewPriceSeries(bars, p.maxGap)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	p.logger.Debug().
		Int("assets", len(out)).
		Str("from", from.Format(time.RFC3339)).
		Str("to", to.Format(time.RFC3339)).
		Msg("Price window prefetched")

	return out, nil
}
