package sources

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

// MultiSource polls several adapters concurrently
type MultiSource struct {
	adapters []interfaces.SourceAdapter
	timeout  time.Duration
	logger   arbor.ILogger
}

// NewMultiSource creates a fan-out over adapters. timeout bounds each adapter call.
func NewMultiSource(adapters []interfaces.SourceAdapter, timeout time.Duration, logger arbor.ILogger) *MultiSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MultiSource{adapters: adapters, timeout: timeout, logger: logger}
}

// Name implements interfaces.SourceAdapter
func (m *MultiSource) Name() string { return "multi" }

// Adapters returns the wrapped adapters
func (m *MultiSource) Adapters() []interfaces.SourceAdapter { return m.adapters }

// Fetch polls every adapter and joins the results in adapter order. An
// adapter error is logged and contributes no items.
func (m *MultiSource) Fetch(ctx context.Context, query string, start, end *time.Time) ([]*models.RawItem, error) {
	results := make([][]*models.RawItem, len(m.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range m.adapters {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, m.timeout)
			defer cancel()

			started := time.Now()
			items, err := adapter.Fetch(callCtx, query, start, end)
			if err != nil {
				m.logger.Error().
					Err(err).
					Str("source", adapter.Name()).
					Msg("Source fetch failed")
				return nil
			}
			results[i] = items

			m.logger.Debug().
				Str("source", adapter.Name()).
				Int("items", len(items)).
				Dur("elapsed", time.Since(started)).
				Msg("Source fetched")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []*models.RawItem
	for _, items := range results {
		all = append(all, items...)
	}
	return all, nil
}
