package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/interfaces"
)

// PurgeResult summarises a semantic purge run
type PurgeResult struct {
	Scanned       int
	Duplicates    int
	Deleted       int
	FailedBatches int
	DuplicateIDs  []string
}

// Purger scans stored intelligence oldest-first and deletes records that are
// semantically equivalent to an earlier one.
type Purger struct {
	store     interfaces.IntelligenceStorage
	embedder  interfaces.Embedder
	threshold float64
	chunkSize int
	history   int
	logger    arbor.ILogger
}

// NewPurger creates a purger. chunkSize bounds the ids deleted per transaction.
func NewPurger(store interfaces.IntelligenceStorage, embedder interfaces.Embedder, threshold float64, chunkSize, historySize int, logger arbor.ILogger) *Purger {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Purger{
		store:     store,
		embedder:  embedder,
		threshold: threshold,
		chunkSize: chunkSize,
		history:   historySize,
		logger:    logger,
	}
}

// Run scans records in [from, to) and removes duplicates. With dryRun set
// nothing is deleted and Deleted stays zero.
func (p *Purger) Run(ctx context.Context, from, to time.Time, dryRun bool) (*PurgeResult, error) {
	records, err := p.store.ListIntelligence(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list intelligence: %w", err)
	}

	result := &PurgeResult{}
	gate := NewSemanticDeduplicator(p.embedder, p.threshold, p.history)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++

		v, err := gate.Check(ctx, rec.ID, rec.DedupText())
		if err != nil {
			p.logger.Warn().Err(err).Str("id", rec.ID).Msg("Embedding failed, keeping record")
			continue
		}
		if !v.Duplicate {
			continue
		}

		result.Duplicates++
		result.DuplicateIDs = append(result.DuplicateIDs, rec.ID)
		p.logger.Debug().
			Str("id", rec.ID).
			Str("match_id", v.MatchID).
			Float64("similarity", v.Similarity).
			Msg("Semantic duplicate found")
	}

	p.logger.Info().
		Int("scanned", result.Scanned).
		Int("duplicates", result.Duplicates).
		Bool("dry_run", dryRun).
		Msg("Semantic scan complete")

	if dryRun || len(result.DuplicateIDs) == 0 {
		return result, nil
	}

	for start := 0; start < len(result.DuplicateIDs); start += p.chunkSize {
		end := min(start+p.chunkSize, len(result.DuplicateIDs))
		chunk := result.DuplicateIDs[start:end]

		n, err := p.store.DeleteIntelligenceBatch(ctx, chunk)
		if err != nil {
			result.FailedBatches++
			p.logger.Error().
				Err(err).
				Int("offset", start).
				Int("size", len(chunk)).
				Msg("Delete batch failed, continuing")
			continue
		}
		result.Deleted += n
	}

	p.logger.Info().
		Int("deleted", result.Deleted).
		Int("failed_batches", result.FailedBatches).
		Msg("Semantic purge complete")

	return result, nil
}
