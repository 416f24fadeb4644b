// Package classifier runs LLM classification with a single fallback attempt
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

var (
	// ErrEmptyAnalysis is returned when a provider answers without a usable summary
	ErrEmptyAnalysis = errors.New("empty analysis")

	// ErrNoProvider is returned when no primary provider is configured
	ErrNoProvider = errors.New("no classification provider configured")
)

// Kind tags which path produced an Outcome
type Kind int

const (
	Failed Kind = iota
	Primary
	Fallback
)

func (k Kind) String() string {
	switch k {
	case Primary:
		return "primary"
	case Fallback:
		return "fallback"
	default:
		return "failed"
	}
}

// Outcome is the result of classifying one item
type Outcome struct {
	Kind     Kind
	Analysis *models.StructuredAnalysis
	Provider string
	Err      error
}

// OK reports whether an analysis was produced
func (o Outcome) OK() bool {
	return o.Kind != Failed && o.Analysis != nil
}

// Options tunes the orchestrator
type Options struct {
	Timeout        time.Duration
	BatchSize      int
	CooldownMin    time.Duration
	CooldownMax    time.Duration
	MaxConcurrency int
}

// Orchestrator classifies items with a primary provider and at most one
// fallback attempt. There are no retries.
type Orchestrator struct {
	primary  interfaces.Classifier
	fallback interfaces.Classifier
	opts     Options
	validate *validator.Validate
	logger   arbor.ILogger

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator. fallback may be nil.
func NewOrchestrator(primary, fallback interfaces.Classifier, opts Options, logger arbor.ILogger) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.CooldownMax < opts.CooldownMin {
		opts.CooldownMax = opts.CooldownMin
	}
	return &Orchestrator{
		primary:  primary,
		fallback: fallback,
		opts:     opts,
		validate: validator.New(),
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Classify runs the primary provider, then the fallback once on any failure
func (o *Orchestrator) Classify(ctx context.Context, item *models.RawItem) Outcome {
	if o.primary == nil {
		return Outcome{Kind: Failed, Err: ErrNoProvider}
	}

	a, err := o.attempt(ctx, o.primary, item.Content)
	if err == nil {
		return Outcome{Kind: Primary, Analysis: a, Provider: o.primary.Name()}
	}

	o.logger.Warn().
		Err(err).
		Str("provider", o.primary.Name()).
		Str("source_id", item.SourceID).
		Msg("Primary classification failed")

	if o.fallback == nil {
		return Outcome{Kind: Failed, Err: err}
	}

	a, ferr := o.attempt(ctx, o.fallback, item.Content)
	if ferr == nil {
		return Outcome{Kind: Fallback, Analysis: a, Provider: o.fallback.Name()}
	}

	o.logger.Error().
		Err(ferr).
		Str("provider", o.fallback.Name()).
		Str("source_id", item.SourceID).
		Msg("Fallback classification failed")

	return Outcome{Kind: Failed, Err: fmt.Errorf("primary: %v; fallback: %w", err, ferr)}
}

func (o *Orchestrator) attempt(ctx context.Context, p interfaces.Classifier, text string) (*models.StructuredAnalysis, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	a, err := p.Classify(callCtx, text)
	if err != nil {
		return nil, err
	}
	if err := o.check(a); err != nil {
		return nil, err
	}
	return a, nil
}

// check rejects nil analyses, empty summaries and out-of-range scores
func (o *Orchestrator) check(a *models.StructuredAnalysis) error {
	if a == nil || strings.TrimSpace(a.Summary.Preferred()) == "" {
		return ErrEmptyAnalysis
	}
	if err := o.validate.Struct(a); err != nil {
		return fmt.Errorf("invalid analysis: %w", err)
	}
	return nil
}

// ClassifyAll classifies items concurrently in single-item mode. Outcomes
// are returned in input order.
func (o *Orchestrator) ClassifyAll(ctx context.Context, items []*models.RawItem) []Outcome {
	outcomes := make([]Outcome, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxConcurrency)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome{Kind: Failed, Err: err}
				return nil
			}
			outcomes[i] = o.Classify(gctx, item)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// ClassifyBatch classifies items in chunks, pausing a random cooldown between
// chunks. Each chunk tries the primary batch call and then the fallback once.
// Outcomes are aligned with items; items the providers skipped are Failed.
func (o *Orchestrator) ClassifyBatch(ctx context.Context, items []*models.RawItem, chunkSize int) ([]Outcome, error) {
	if o.primary == nil {
		return nil, ErrNoProvider
	}
	if chunkSize <= 0 {
		chunkSize = o.opts.BatchSize
	}

	outcomes := make([]Outcome, len(items))
	total := (len(items) + chunkSize - 1) / chunkSize

	for start, n := 0, 1; start < len(items); start, n = start+chunkSize, n+1 {
		if n > 1 {
			if err := o.sleep(ctx, o.cooldown()); err != nil {
				return outcomes, err
			}
		}

		end := min(start+chunkSize, len(items))
		chunk := items[start:end]

		o.logger.Debug().
			Int("batch", n).
			Int("batches", total).
			Int("items", len(chunk)).
			Msg("Classifying batch")

		results := o.classifyChunk(ctx, chunk)
		copy(outcomes[start:end], results)
	}

	return outcomes, nil
}

func (o *Orchestrator) classifyChunk(ctx context.Context, chunk []*models.RawItem) []Outcome {
	texts := make([]string, len(chunk))
	for i, item := range chunk {
		texts[i] = item.Content
	}

	out := make([]Outcome, len(chunk))

	analyses, err := o.attemptBatch(ctx, o.primary, texts)
	kind, provider := Primary, o.primary.Name()
	if err != nil && o.fallback != nil {
		o.logger.Warn().Err(err).Str("provider", provider).Msg("Primary batch failed, trying fallback")
		analyses, err = o.attemptBatch(ctx, o.fallback, texts)
		kind, provider = Fallback, o.fallback.Name()
	}
	if err != nil {
		o.logger.Error().Err(err).Int("items", len(chunk)).Msg("Batch classification failed")
		for i := range out {
			out[i] = Outcome{Kind: Failed, Err: err}
		}
		return out
	}

	for i := range out {
		var a *models.StructuredAnalysis
		if i < len(analyses) {
			a = analyses[i]
		}
		if cerr := o.check(a); cerr != nil {
			out[i] = Outcome{Kind: Failed, Err: cerr}
			continue
		}
		out[i] = Outcome{Kind: kind, Analysis: a, Provider: provider}
	}
	return out
}

func (o *Orchestrator) attemptBatch(ctx context.Context, p interfaces.Classifier, texts []string) ([]*models.StructuredAnalysis, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	analyses, err := p.ClassifyBatch(callCtx, texts)
	if err != nil {
		return nil, err
	}
	for _, a := range analyses {
		if a != nil {
			return analyses, nil
		}
	}
	return nil, ErrEmptyAnalysis
}

func (o *Orchestrator) cooldown() time.Duration {
	span := o.opts.CooldownMax - o.opts.CooldownMin
	if span <= 0 {
		return o.opts.CooldownMin
	}
	return o.opts.CooldownMin + rand.N(span+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
