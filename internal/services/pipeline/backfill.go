package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/services/classifier"
	"github.com/ternarybob/aurum/internal/services/dedup"
)

// DefaultBackfillQuery is the historical search used when none is configured
const DefaultBackfillQuery = "Donald Trump (Truth Social OR Economy OR Tariff OR Fed OR Gold)"

// BackfillOptions configures a historical replay
type BackfillOptions struct {
	Query        string
	Start        time.Time
	End          time.Time // inclusive day; zero means today
	BatchSize    int
	FailurePause time.Duration
}

// MonthResult summarizes one replayed month
type MonthResult struct {
	Month     string
	Fetched   int
	Admitted  int
	Succeeded int
}

// BackfillRunner replays history month by month with a resumable checkpoint
type BackfillRunner struct {
	source      interfaces.SourceAdapter
	dedup       *dedup.Deduplicator
	classifier  *classifier.Orchestrator
	processor   *Processor
	checkpoints *CheckpointStore
	opts        BackfillOptions
	logger      arbor.ILogger

	// sleep and now are replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewBackfillRunner(
	source interfaces.SourceAdapter,
	gate *dedup.Deduplicator,
	orchestrator *classifier.Orchestrator,
	processor *Processor,
	checkpoints *CheckpointStore,
	opts BackfillOptions,
	logger arbor.ILogger,
) *BackfillRunner {
	if opts.Query == "" {
		opts.Query = DefaultBackfillQuery
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.FailurePause <= 0 {
		opts.FailurePause = 30 * time.Second
	}
	return &BackfillRunner{
		source:      source,
		dedup:       gate,
		classifier:  orchestrator,
		processor:   processor,
		checkpoints: checkpoints,
		opts:        opts,
		logger:      logger,
		sleep:       pause,
		now:         time.Now,
	}
}

// Run replays [Start, End] and returns the final checkpoint. A corrupt
// checkpoint fails before any work. Cancellation is observed between months;
// a month interrupted mid-way keeps its writes but not its checkpoint, so the
// next run repeats it and the identity check drops what was already saved.
func (b *BackfillRunner) Run(ctx context.Context) (*models.PipelineCheckpoint, error) {
	cp, err := b.checkpoints.Load()
	if err != nil {
		return nil, err
	}
	if cp == nil {
		cp = &models.PipelineCheckpoint{}
	}

	end := b.opts.End
	if end.IsZero() {
		end = b.now()
	}
	stop := dayStart(end).AddDate(0, 0, 1)

	cursor := dayStart(b.opts.Start)
	if cp.LastProcessedDate != "" {
		last, _ := time.Parse(checkpointDateLayout, cp.LastProcessedDate)
		if resume := last.AddDate(0, 0, 1); resume.After(cursor) {
			cursor = resume
		}
		b.logger.Info().
			Str("last_date", cp.LastProcessedDate).
			Str("resume", cursor.Format(checkpointDateLayout)).
			Msg("Resuming backfill from checkpoint")
	}

	// Near-duplicates of stories saved before the resume point must still be caught
	if first := dayStart(b.opts.Start); cursor.After(first) {
		prior, err := b.processor.store.ListIntelligence(ctx, first, cursor)
		if err != nil {
			return cp, fmt.Errorf("failed to load records before %s: %w", cursor.Format(checkpointDateLayout), err)
		}
		n := b.dedup.Prime(prior)
		b.logger.Info().
			Int("records", len(prior)).
			Int("fingerprints", n).
			Msg("Seeded duplicate history from saved records")
	}

	for cursor.Before(stop) {
		if err := ctx.Err(); err != nil {
			return cp, err
		}

		next := time.Date(cursor.Year(), cursor.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		if next.After(stop) {
			next = stop
		}

		res, err := b.runMonth(ctx, cursor, next)
		if err != nil {
			if ctx.Err() != nil {
				return cp, ctx.Err()
			}
			b.logger.Error().
				Err(err).
				Str("month", res.Month).
				Dur("pause", b.opts.FailurePause).
				Msg("Backfill month failed")
			if serr := b.sleep(ctx, b.opts.FailurePause); serr != nil {
				return cp, serr
			}
			cursor = next
			continue
		}

		cp.LastProcessedDate = next.AddDate(0, 0, -1).Format(checkpointDateLayout)
		cp.TotalProcessed += res.Fetched
		cp.TotalSucceeded += res.Succeeded
		cp.LastUpdated = b.now().UTC()
		if err := b.checkpoints.Save(cp); err != nil {
			return cp, fmt.Errorf("failed to save checkpoint after %s: %w", res.Month, err)
		}

		b.logger.Info().
			Str("month", res.Month).
			Int("fetched", res.Fetched).
			Int("admitted", res.Admitted).
			Int("saved", res.Succeeded).
			Int("total_saved", cp.TotalSucceeded).
			Msg("Backfill month complete")

		cursor = next
	}

	return cp, nil
}

func (b *BackfillRunner) runMonth(ctx context.Context, from, to time.Time) (MonthResult, error) {
	res := MonthResult{Month: from.Format("2006-01")}

	items, err := b.source.Fetch(ctx, b.opts.Query, &from, &to)
	if err != nil {
		return res, fmt.Errorf("fetch news: %w", err)
	}
	res.Fetched = len(items)
	if len(items) == 0 {
		b.logger.Info().Str("month", res.Month).Msg("No news found for month")
		return res, nil
	}

	survivors := b.dedup.Filter(ctx, items)
	res.Admitted = len(survivors)
	if len(survivors) == 0 {
		return res, nil
	}

	// One prefetch per month, replayed for every item
	series := b.processor.FetchPrices(ctx, nil, from, to)

	outcomes, err := b.classifier.ClassifyBatch(ctx, survivors, b.opts.BatchSize)
	if err != nil && ctx.Err() == nil {
		return res, fmt.Errorf("classify: %w", err)
	}

	records := BuildRecords(survivors, outcomes, from, b.logger)
	b.processor.Correlate(records, series, false)
	b.processor.Score(ctx, records, false)

	created, perr := b.processor.Persist(context.WithoutCancel(ctx), records)
	res.Succeeded = len(created)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if perr != nil && len(created) == 0 {
		return res, fmt.Errorf("persist: %w", perr)
	}
	return res, nil
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
