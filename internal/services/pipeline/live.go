package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/services/classifier"
	"github.com/ternarybob/aurum/internal/services/dedup"
	"github.com/ternarybob/aurum/internal/services/scheduler"
)

const liveJobName = "live_cycle"

// Notifier delivers alerts for urgent records
type Notifier interface {
	Dispatch(ctx context.Context, title, message string) int
}

// LiveOptions configures polling
type LiveOptions struct {
	Query           string
	IntervalMinutes int
	Lookback        time.Duration
	MinUrgency      int
	StateKey        string
}

// CycleResult summarizes one polling cycle
type CycleResult struct {
	Fetched    int
	Admitted   int
	Classified int
	Created    int
	Notified   int
}

// LiveRunner polls sources on a schedule and pushes new items through the pipeline
type LiveRunner struct {
	source     interfaces.SourceAdapter
	dedup      *dedup.Deduplicator
	classifier *classifier.Orchestrator
	processor  *Processor
	notifier   Notifier
	kv         interfaces.KeyValueStorage
	scheduler  *scheduler.Service
	opts       LiveOptions
	logger     arbor.ILogger

	// mu serializes cycles between the schedule and manual runs
	mu  sync.Mutex
	now func() time.Time
}

func NewLiveRunner(
	source interfaces.SourceAdapter,
	gate *dedup.Deduplicator,
	orchestrator *classifier.Orchestrator,
	processor *Processor,
	notifier Notifier,
	kv interfaces.KeyValueStorage,
	sched *scheduler.Service,
	opts LiveOptions,
	logger arbor.ILogger,
) *LiveRunner {
	if opts.IntervalMinutes <= 0 {
		opts.IntervalMinutes = 30
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 48 * time.Hour
	}
	if opts.StateKey == "" {
		opts.StateKey = "monitor_state"
	}
	return &LiveRunner{
		source:     source,
		dedup:      gate,
		classifier: orchestrator,
		processor:  processor,
		notifier:   notifier,
		kv:         kv,
		scheduler:  sched,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Start restores the monitor state, schedules the cycle and runs one immediately
func (r *LiveRunner) Start(ctx context.Context) error {
	if err := r.LoadState(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to load monitor state, starting fresh")
	}

	err := r.scheduler.RegisterJob(liveJobName, scheduler.EveryMinutes(r.opts.IntervalMinutes), "Poll sources and enrich new items", func(ctx context.Context) error {
		_, err := r.RunCycle(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to register live cycle: %w", err)
	}

	if err := r.scheduler.Start(ctx); err != nil {
		return err
	}

	r.logger.Info().
		Int("interval_minutes", r.opts.IntervalMinutes).
		Str("query", r.opts.Query).
		Msg("Live monitor started")

	return r.scheduler.TriggerJob(liveJobName)
}

// Stop stops scheduling and waits for the in-flight cycle
func (r *LiveRunner) Stop() error {
	return r.scheduler.Stop()
}

// RunCycle executes one poll. A cycle that finds nothing is a no-op.
func (r *LiveRunner) RunCycle(ctx context.Context) (CycleResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result CycleResult
	started := r.now()

	items, err := r.source.Fetch(ctx, r.opts.Query, nil, nil)
	if err != nil {
		return result, fmt.Errorf("failed to fetch sources: %w", err)
	}
	result.Fetched = len(items)
	if len(items) == 0 {
		r.logger.Debug().Msg("No new items this cycle")
		return result, nil
	}

	survivors := r.dedup.Filter(ctx, items)
	result.Admitted = len(survivors)

	// Admitted items are already marked seen and would never be offered again,
	// so the rest of the cycle runs to completion once shutdown begins.
	// Provider timeouts still bound it.
	work := context.WithoutCancel(ctx)

	// Seen ids change even when every item is dropped
	defer func() {
		if err := r.SaveState(work); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to save monitor state")
		}
	}()

	if len(survivors) == 0 {
		r.logger.Info().Int("fetched", result.Fetched).Msg("All items were duplicates")
		return result, nil
	}

	outcomes := r.classifier.ClassifyAll(work, survivors)
	records := BuildRecords(survivors, outcomes, started, r.logger)
	result.Classified = len(records)
	if len(records) == 0 {
		return result, nil
	}

	series := r.processor.FetchPrices(work, records, started.Add(-r.opts.Lookback), started)
	r.processor.Correlate(records, series, false)
	r.processor.Score(work, records, false)

	created, err := r.processor.Persist(work, records)
	result.Created = len(created)

	for _, rec := range created {
		if rec.UrgencyScore < r.opts.MinUrgency || r.notifier == nil {
			continue
		}
		title, message := AlertText(rec)
		if r.notifier.Dispatch(work, title, message) > 0 {
			result.Notified++
		}
	}

	r.logger.Info().
		Int("fetched", result.Fetched).
		Int("admitted", result.Admitted).
		Int("classified", result.Classified).
		Int("created", result.Created).
		Int("notified", result.Notified).
		Dur("duration", r.now().Sub(started)).
		Msg("Live cycle complete")

	return result, err
}

// AlertText formats the notification for a record
func AlertText(rec *models.IntelligenceRecord) (string, string) {
	title := fmt.Sprintf("[%d/10] %s", rec.UrgencyScore, rec.Author)
	message := rec.Summary.Preferred()
	if s := rec.Sentiment.Preferred(); s != "" {
		message += "\n" + s
	}
	if m := rec.MarketImplication.Preferred(); m != "" {
		message += "\n" + m
	}
	if rec.GoldPriceSnapshot != nil {
		message += fmt.Sprintf("\nXAU %.2f", *rec.GoldPriceSnapshot)
	}
	return title, message
}

// LoadState restores seen ids and fingerprints saved by a previous process
func (r *LiveRunner) LoadState(ctx context.Context) error {
	if r.kv == nil {
		return nil
	}
	raw, err := r.kv.Get(ctx, r.opts.StateKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var state dedup.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return fmt.Errorf("invalid monitor state: %w", err)
	}
	r.dedup.Restore(state)

	r.logger.Info().
		Int("seen", len(state.Seen)).
		Int("fingerprints", len(state.Fingerprints)).
		Msg("Monitor state restored")
	return nil
}

// SaveState persists the dedup state to the KV store
func (r *LiveRunner) SaveState(ctx context.Context) error {
	if r.kv == nil {
		return nil
	}
	data, err := json.Marshal(r.dedup.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode monitor state: %w", err)
	}
	return r.kv.Set(ctx, r.opts.StateKey, string(data), "Live monitor seen ids and fingerprints")
}
