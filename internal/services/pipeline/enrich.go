package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

// EnrichResult summarizes a migration pass
type EnrichResult struct {
	Scanned int
	Updated int
	Failed  int
	Months  int
}

// Enricher fills enrichment columns that older records are missing. Only
// nil fields are written; existing values are never overwritten.
type Enricher struct {
	store     interfaces.IntelligenceStorage
	processor *Processor
	limit     int
	logger    arbor.ILogger
}

// NewEnricher creates an enricher. limit bounds how many records one pass scans; 0 means all.
func NewEnricher(store interfaces.IntelligenceStorage, processor *Processor, limit int, logger arbor.ILogger) *Enricher {
	return &Enricher{store: store, processor: processor, limit: limit, logger: logger}
}

// Run groups incomplete records by month, loads prices once per month and
// updates each record in place
func (e *Enricher) Run(ctx context.Context) (*EnrichResult, error) {
	records, err := e.store.ListMissingEnrichment(ctx, e.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records missing enrichment: %w", err)
	}

	result := &EnrichResult{Scanned: len(records)}
	if len(records) == 0 {
		e.logger.Info().Msg("No records need enrichment")
		return result, nil
	}

	byMonth := make(map[string][]*models.IntelligenceRecord)
	for _, r := range records {
		key := r.Timestamp.UTC().Format("2006-01")
		byMonth[key] = append(byMonth[key], r)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	for _, month := range months {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		group := byMonth[month]
		from, to := group[0].Timestamp, group[0].Timestamp
		for _, r := range group {
			if r.Timestamp.Before(from) {
				from = r.Timestamp
			}
			if r.Timestamp.After(to) {
				to = r.Timestamp
			}
		}

		series := e.processor.FetchPrices(ctx, nil, from, to)
		e.processor.Correlate(group, series, true)
		e.processor.Score(ctx, group, true)

		for _, r := range group {
			if err := e.store.UpdateEnrichment(ctx, r); err != nil {
				result.Failed++
				e.logger.Warn().Err(err).Str("id", r.ID).Msg("Failed to update enrichment")
				continue
			}
			result.Updated++
		}
		result.Months++

		e.logger.Info().
			Str("month", month).
			Int("records", len(group)).
			Msg("Enriched month")
	}

	return result, nil
}
