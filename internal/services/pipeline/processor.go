// Package pipeline drives the live and backfill ingestion flows
package pipeline

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/services/classifier"
	"github.com/ternarybob/aurum/internal/services/market"
	"github.com/ternarybob/aurum/internal/signals"
)

// SeriesFetcher loads price series for a window
type SeriesFetcher interface {
	FetchWindow(ctx context.Context, start, end time.Time) (map[models.Asset]*market.PriceSeries, error)
}

// Processor holds the stages shared by the live and backfill flows: record
// building, price correlation, signal scoring and persistence
type Processor struct {
	store      interfaces.IntelligenceStorage
	prices     SeriesFetcher
	correlator *market.Correlator
	engine     *signals.Engine
	logger     arbor.ILogger
}

func NewProcessor(store interfaces.IntelligenceStorage, prices SeriesFetcher, correlator *market.Correlator, engine *signals.Engine, logger arbor.ILogger) *Processor {
	return &Processor{
		store:      store,
		prices:     prices,
		correlator: correlator,
		engine:     engine,
		logger:     logger,
	}
}

// BuildRecord turns a successful classification into a record. Items without
// a publication time are stamped with now.
func BuildRecord(item *models.RawItem, outcome classifier.Outcome, now time.Time) *models.IntelligenceRecord {
	a := outcome.Analysis
	return &models.IntelligenceRecord{
		Timestamp:         item.EventTime(now),
		SourceID:          item.SourceID,
		Author:            item.Author,
		Content:           item.Content,
		URL:               item.URL,
		SourceTier:        item.SourceTier,
		UrgencyMultiplier: item.UrgencyMultiplier,
		Summary:           a.Summary,
		Sentiment:         a.Sentiment,
		SentimentScore:    a.SentimentScore,
		MarketImplication: a.MarketImplication,
		ActionableAdvice:  a.ActionableAdvice,
		UrgencyScore:      a.UrgencyScore,
		Provider:          outcome.Provider,
	}
}

// BuildRecords pairs items with their outcomes and drops the failures
func BuildRecords(items []*models.RawItem, outcomes []classifier.Outcome, now time.Time, logger arbor.ILogger) []*models.IntelligenceRecord {
	records := make([]*models.IntelligenceRecord, 0, len(items))
	for i, item := range items {
		if i >= len(outcomes) || !outcomes[i].OK() {
			var err error
			if i < len(outcomes) {
				err = outcomes[i].Err
			}
			logger.Warn().
				Err(err).
				Str("source_id", item.SourceID).
				Str("author", item.Author).
				Msg("Item not classified, skipping")
			continue
		}
		records = append(records, BuildRecord(item, outcomes[i], now))
	}
	return records
}

// Correlate fills price snapshots from series already loaded for the window
func (p *Processor) Correlate(records []*models.IntelligenceRecord, series map[models.Asset]*market.PriceSeries, onlyMissing bool) {
	for _, r := range records {
		r.ApplySnapshot(p.correlator.Snapshot(r.Timestamp, series), onlyMissing)
	}
}

// FetchPrices loads the series covering every record plus extra on the right
// for the forward horizons. A fetch error leaves the result empty.
func (p *Processor) FetchPrices(ctx context.Context, records []*models.IntelligenceRecord, start, end time.Time) map[models.Asset]*market.PriceSeries {
	for _, r := range records {
		if r.Timestamp.Before(start) {
			start = r.Timestamp
		}
		if r.Timestamp.After(end) {
			end = r.Timestamp
		}
	}
	series, err := p.prices.FetchWindow(ctx, start, end)
	if err != nil {
		p.logger.Warn().Err(err).Str("start", start.Format(time.RFC3339)).Str("end", end.Format(time.RFC3339)).Msg("Price prefetch failed, snapshots left empty")
		return nil
	}
	return series
}

// Score sets session, clustering and exhaustion from persisted events plus
// the records themselves
func (p *Processor) Score(ctx context.Context, records []*models.IntelligenceRecord, onlyMissing bool) {
	if len(records) == 0 {
		return
	}

	from, to := records[0].Timestamp, records[0].Timestamp
	for _, r := range records[1:] {
		if r.Timestamp.Before(from) {
			from = r.Timestamp
		}
		if r.Timestamp.After(to) {
			to = r.Timestamp
		}
	}

	events, err := p.store.ListRecentEvents(ctx, from.Add(-p.engine.Lookback()), to)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to load recent events, scoring against this batch only")
		events = nil
	}

	for _, r := range records {
		// persisted records are already among the listed events
		if r.ID != "" {
			continue
		}
		events = append(events, r.Point())
	}

	for _, r := range records {
		p.engine.Apply(r, events, onlyMissing)
	}
}

// Persist saves records and returns those newly created. A duplicate
// SourceID is a no-op; other store errors are logged and the first is returned.
func (p *Processor) Persist(ctx context.Context, records []*models.IntelligenceRecord) ([]*models.IntelligenceRecord, error) {
	created := make([]*models.IntelligenceRecord, 0, len(records))
	var firstErr error
	for _, r := range records {
		id, isNew, err := p.store.SaveIntelligence(ctx, r)
		if err != nil {
			p.logger.Error().
				Err(err).
				Str("source_id", r.SourceID).
				Str("timestamp", r.Timestamp.Format(time.RFC3339)).
				Msg("Failed to save intelligence")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !isNew {
			p.logger.Debug().Str("source_id", r.SourceID).Str("id", id).Msg("Record already stored")
			continue
		}
		created = append(created, r)
	}
	return created, firstErr
}
