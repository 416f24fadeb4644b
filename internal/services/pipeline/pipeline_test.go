package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/services/classifier"
	"github.com/ternarybob/aurum/internal/services/dedup"
	"github.com/ternarybob/aurum/internal/services/market"
	"github.com/ternarybob/aurum/internal/services/scheduler"
	"github.com/ternarybob/aurum/internal/signals"
)

// memStore is an in-memory IntelligenceStorage
type memStore struct {
	mu       sync.Mutex
	records  map[string]*models.IntelligenceRecord // by SourceID
	failSave func(r *models.IntelligenceRecord) bool
	updates  int
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*models.IntelligenceRecord{}}
}

func (m *memStore) IsDuplicate(ctx context.Context, sourceID, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[sourceID]
	return ok, nil
}

func (m *memStore) SaveIntelligence(ctx context.Context, r *models.IntelligenceRecord) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil && m.failSave(r) {
		return "", false, errors.New("disk full")
	}
	if existing, ok := m.records[r.SourceID]; ok {
		return existing.ID, false, nil
	}
	if r.ID == "" {
		r.ID = common.NewIntelligenceID()
	}
	m.records[r.SourceID] = r
	return r.ID, true, nil
}

func (m *memStore) GetIntelligence(ctx context.Context, id string) (*models.IntelligenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (m *memStore) ListIntelligence(ctx context.Context, from, to time.Time) ([]*models.IntelligenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.IntelligenceRecord
	for _, r := range m.records {
		if (!from.IsZero() && r.Timestamp.Before(from)) || (!to.IsZero() && !r.Timestamp.Before(to)) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memStore) ListRecentEvents(ctx context.Context, since, until time.Time) ([]models.EventPoint, error) {
	records, _ := m.ListIntelligence(ctx, since, until)
	points := make([]models.EventPoint, 0, len(records))
	for _, r := range records {
		points = append(points, r.Point())
	}
	return points, nil
}

func (m *memStore) ListMissingEnrichment(ctx context.Context, limit int) ([]*models.IntelligenceRecord, error) {
	all, _ := m.ListIntelligence(ctx, time.Time{}, time.Time{})
	var out []*models.IntelligenceRecord
	for _, r := range all {
		if r.NeedsEnrichment() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) UpdateEnrichment(ctx context.Context, r *models.IntelligenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	m.records[r.SourceID] = r
	return nil
}

func (m *memStore) DeleteIntelligenceBatch(ctx context.Context, ids []string) (int, error) {
	return 0, nil
}

func (m *memStore) CountIntelligence(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

type memKV struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) Set(ctx context.Context, key, value, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error { return nil }

func (m *memKV) List(ctx context.Context) ([]interfaces.KeyValuePair, error) { return nil, nil }

type fakeSource struct {
	mu    sync.Mutex
	fetch func(start, end *time.Time) []*models.RawItem
	calls []string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, query string, start, end *time.Time) ([]*models.RawItem, error) {
	f.mu.Lock()
	if start != nil {
		f.calls = append(f.calls, start.Format("2006-01-02"))
	} else {
		f.calls = append(f.calls, "live")
	}
	f.mu.Unlock()
	return f.fetch(start, end), nil
}

type fakeClassifier struct {
	name    string
	err     error
	urgency int
	before  func()
	calls   atomic.Int32
}

func (f *fakeClassifier) Name() string { return f.name }

func (f *fakeClassifier) analysis(text string) *models.StructuredAnalysis {
	return &models.StructuredAnalysis{
		Summary:        models.NewLocalizedText(models.LangEN, "summary of "+text),
		Sentiment:      models.NewLocalizedText(models.LangEN, "bullish"),
		SentimentScore: 0.6,
		UrgencyScore:   f.urgency,
	}
}

// call counts the request and fails the way a provider does when ctx is done
func (f *fakeClassifier) call(ctx context.Context) error {
	f.calls.Add(1)
	if f.before != nil {
		f.before()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.err
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (*models.StructuredAnalysis, error) {
	if err := f.call(ctx); err != nil {
		return nil, err
	}
	return f.analysis(text), nil
}

func (f *fakeClassifier) ClassifyBatch(ctx context.Context, texts []string) ([]*models.StructuredAnalysis, error) {
	if err := f.call(ctx); err != nil {
		return nil, err
	}
	out := make([]*models.StructuredAnalysis, len(texts))
	for i, t := range texts {
		out[i] = f.analysis(t)
	}
	return out, nil
}

type fakePrices struct {
	series map[models.Asset]*market.PriceSeries
	calls  atomic.Int32
}

func (f *fakePrices) FetchWindow(ctx context.Context, start, end time.Time) (map[models.Asset]*market.PriceSeries, error) {
	f.calls.Add(1)
	return f.series, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *recordingNotifier) Dispatch(ctx context.Context, title, message string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return 1
}

// hourlyGold returns hourly gold bars over [from, to) with close = 2000 + hours elapsed
func hourlyGold(from, to time.Time) *fakePrices {
	var bars []models.PriceBar
	for t, i := from, 0; t.Before(to); t, i = t.Add(time.Hour), i+1 {
		bars = append(bars, models.PriceBar{Time: t, Close: 2000 + float64(i)})
	}
	return &fakePrices{series: map[models.Asset]*market.PriceSeries{
		models.AssetGold: market.NewPriceSeries(bars, market.DefaultMaxGap),
	}}
}

var stories = []string{
	"Trump announces sweeping new tariffs on imported steel and aluminium from Europe",
	"Federal Reserve chair signals patience on interest rates amid sticky inflation data",
	"Gold climbs to a record high as investors seek safety after weak jobs report",
	"Truth Social post attacks central bank independence and demands immediate cuts",
}

func rawItem(id string, content string, at time.Time) *models.RawItem {
	return &models.RawItem{
		SourceID:          id,
		Source:            "fake",
		Author:            "Reuters",
		Content:           content,
		URL:               "https://example.com/" + id,
		PublishedAt:       &at,
		SourceTier:        1,
		UrgencyMultiplier: 1.5,
	}
}

func newProcessor(store interfaces.IntelligenceStorage, prices SeriesFetcher) *Processor {
	cfg := common.NewDefaultConfig()
	return NewProcessor(store, prices, market.NewCorrelator(nil), signals.NewEngine(&cfg.Signals), arbor.NewLogger())
}

func newOrchestrator(primary, fallback interfaces.Classifier) *classifier.Orchestrator {
	return classifier.NewOrchestrator(primary, fallback, classifier.Options{Timeout: time.Second, BatchSize: 2}, arbor.NewLogger())
}

type liveFixture struct {
	runner   *LiveRunner
	store    *memStore
	kv       *memKV
	source   *fakeSource
	notifier *recordingNotifier
	primary  *fakeClassifier
	fallback *fakeClassifier
}

func newLiveFixture(t *testing.T, items []*models.RawItem) *liveFixture {
	t.Helper()
	logger := arbor.NewLogger()
	now := time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC)

	f := &liveFixture{
		store:    newMemStore(),
		kv:       &memKV{values: map[string]string{}},
		source:   &fakeSource{fetch: func(start, end *time.Time) []*models.RawItem { return items }},
		notifier: &recordingNotifier{},
		primary:  &fakeClassifier{name: "gemini", urgency: 8},
		fallback: &fakeClassifier{name: "deepseek", urgency: 8},
	}
	prices := hourlyGold(now.Add(-72*time.Hour), now.Add(time.Hour))

	f.runner = NewLiveRunner(
		f.source,
		dedup.NewDeduplicator(f.store, 1000, 3, logger),
		newOrchestrator(f.primary, f.fallback),
		newProcessor(f.store, prices),
		f.notifier,
		f.kv,
		scheduler.NewService(f.kv, logger),
		LiveOptions{Query: "gold", IntervalMinutes: 30, Lookback: 48 * time.Hour, MinUrgency: 7},
		logger,
	)
	f.runner.now = func() time.Time { return now }
	return f
}

func TestLiveRunner_RunCycle(t *testing.T) {
	at := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)
	items := []*models.RawItem{
		rawItem("a", stories[0], at),
		rawItem("b", stories[1], at.Add(10*time.Minute)),
		// Same story republished under a new id
		rawItem("c", stories[0], at.Add(20*time.Minute)),
	}
	f := newLiveFixture(t, items)
	ctx := context.Background()

	res, err := f.runner.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Fetched: 3, Admitted: 2, Classified: 2, Created: 2, Notified: 2}, res)

	rec := f.store.records["a"]
	require.NotNil(t, rec)
	assert.True(t, len(rec.ID) > len("intel_"))
	assert.Equal(t, "gemini", rec.Provider)
	require.NotNil(t, rec.GoldPriceSnapshot)
	require.NotNil(t, rec.Price1h)
	assert.InDelta(t, *rec.GoldPriceSnapshot+1, *rec.Price1h, 1e-9)
	assert.Equal(t, models.SessionEurope, rec.MarketSession)
	require.NotNil(t, rec.ClusteringScore)
	require.NotNil(t, rec.ExhaustionScore)

	// b follows a within the clustering window
	assert.Greater(t, *f.store.records["b"].ClusteringScore, 0.0)

	_, err = f.kv.Get(ctx, "monitor_state")
	assert.NoError(t, err)

	// Same items again: all already seen
	res, err = f.runner.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Admitted)
	assert.Equal(t, 0, res.Created)
	assert.Len(t, f.notifier.titles, 2)
}

func TestLiveRunner_BothProvidersFail(t *testing.T) {
	at := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)
	f := newLiveFixture(t, []*models.RawItem{rawItem("a", stories[0], at)})
	f.primary.err = errors.New("quota exceeded")
	f.fallback.err = errors.New("timeout")

	res, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Admitted)
	assert.Equal(t, 0, res.Created)
	assert.Empty(t, f.store.records)
	assert.Empty(t, f.notifier.titles)
	assert.Equal(t, int32(1), f.primary.calls.Load())
	assert.Equal(t, int32(1), f.fallback.calls.Load())
}

func TestLiveRunner_EmptyCycleIsNoop(t *testing.T) {
	f := newLiveFixture(t, nil)

	res, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{}, res)
	assert.Empty(t, f.kv.values)
}

func TestLiveRunner_LowUrgencyNotNotified(t *testing.T) {
	at := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)
	f := newLiveFixture(t, []*models.RawItem{rawItem("a", stories[2], at)})
	f.primary.urgency = 3

	res, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Notified)
}

func TestLiveRunner_StateSurvivesRestart(t *testing.T) {
	at := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)
	items := []*models.RawItem{rawItem("a", stories[0], at)}
	f := newLiveFixture(t, items)
	_, err := f.runner.RunCycle(context.Background())
	require.NoError(t, err)

	// A fresh gate over an empty store only knows the id through the saved state
	logger := arbor.NewLogger()
	gate := dedup.NewDeduplicator(newMemStore(), 1000, 3, logger)
	restarted := NewLiveRunner(f.source, gate, newOrchestrator(f.primary, nil), newProcessor(newMemStore(), &fakePrices{}), nil, f.kv, scheduler.NewService(nil, logger), LiveOptions{}, logger)
	require.NoError(t, restarted.LoadState(context.Background()))

	v := gate.Admit(context.Background(), rawItem("a", stories[0], at))
	assert.True(t, v.Duplicate)
	assert.Equal(t, dedup.ReasonSeen, v.Reason)
}

func TestLiveRunner_StartRunsImmediately(t *testing.T) {
	at := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)
	f := newLiveFixture(t, []*models.RawItem{rawItem("a", stories[0], at)})

	require.NoError(t, f.runner.Start(context.Background()))
	require.Eventually(t, func() bool {
		n, _ := f.store.CountIntelligence(context.Background())
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.runner.Stop())
}

func TestLiveRunner_ShutdownMidCycleKeepsAdmittedItems(t *testing.T) {
	at := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)
	f := newLiveFixture(t, []*models.RawItem{rawItem("a", stories[0], at)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Shutdown arrives while the provider call is in flight
	f.primary.before = cancel

	res, err := f.runner.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Admitted)
	assert.Equal(t, 1, res.Created)
	require.Contains(t, f.store.records, "a")
	assert.Equal(t, "gemini", f.store.records["a"].Provider)
	assert.Zero(t, f.fallback.calls.Load())

	// The id is seen, so a later cycle must not be the only chance to store it
	res, err = f.runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Admitted)
	assert.Len(t, f.store.records, 1)
}

func TestAlertText(t *testing.T) {
	rec := &models.IntelligenceRecord{
		Author:            "Bloomberg",
		UrgencyScore:      9,
		Summary:           models.NewLocalizedText(models.LangEN, "Tariffs", models.LangZH, "关税"),
		MarketImplication: models.NewLocalizedText(models.LangEN, "Gold bid"),
		GoldPriceSnapshot: models.Float(2650.5),
	}
	title, msg := AlertText(rec)
	assert.Equal(t, "[9/10] Bloomberg", title)
	assert.Equal(t, "关税\nGold bid\nXAU 2650.50", msg)
}

func TestCheckpointStore(t *testing.T) {
	dir := t.TempDir()
	store := NewCheckpointStore(filepath.Join(dir, "nested", "progress.json"))

	cp, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cp)

	want := &models.PipelineCheckpoint{
		LastProcessedDate: "2025-06-30",
		TotalProcessed:    42,
		TotalSucceeded:    40,
		LastUpdated:       time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestCheckpointStore_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated json", `{"last_date": "2025-06`},
		{"bad date", `{"last_date": "June 2025"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "progress.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := NewCheckpointStore(path).Load()
			assert.ErrorIs(t, err, ErrCheckpointCorrupt)
		})
	}
}

type backfillFixture struct {
	runner *BackfillRunner
	store  *memStore
	source *fakeSource
	cps    *CheckpointStore
	pauses []time.Duration
}

var monthStories = map[time.Month][2]string{
	time.January: {
		"Treasury yields jump after hotter than expected consumer price index print",
		"Tariff threat on Mexican imports rattles currency markets overnight",
	},
	time.February: {
		"Central bank minutes show officials split over the pace of balance sheet runoff",
		"President calls for a weaker dollar during a late night rally speech",
	},
	time.March: {
		"Bullion demand from Asian central banks hits a multi year high",
		"Government shutdown averted as Congress passes a stopgap spending bill",
	},
}

// monthlyItems returns two distinct stories dated inside [start, end)
func monthlyItems(start, end *time.Time) []*models.RawItem {
	if start == nil {
		return nil
	}
	month := start.Format("2006-01")
	texts := monthStories[start.Month()]
	return []*models.RawItem{
		rawItem(month+"-1", texts[0], start.Add(36*time.Hour)),
		rawItem(month+"-2", texts[1], start.Add(60*time.Hour)),
	}
}

func newBackfillFixture(t *testing.T, path string, store *memStore) *backfillFixture {
	t.Helper()
	logger := arbor.NewLogger()
	if store == nil {
		store = newMemStore()
	}
	f := &backfillFixture{
		store:  store,
		source: &fakeSource{fetch: monthlyItems},
		cps:    NewCheckpointStore(path),
	}
	prices := hourlyGold(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	f.runner = NewBackfillRunner(
		f.source,
		dedup.NewDeduplicator(f.store, 1000, 3, logger),
		newOrchestrator(&fakeClassifier{name: "gemini", urgency: 5}, nil),
		newProcessor(f.store, prices),
		f.cps,
		BackfillOptions{
			Start:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			End:       time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			BatchSize: 10,
		},
		logger,
	)
	f.runner.sleep = func(ctx context.Context, d time.Duration) error {
		f.pauses = append(f.pauses, d)
		return nil
	}
	f.runner.now = func() time.Time { return time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC) }
	return f
}

func TestBackfillRunner_Run(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	f := newBackfillFixture(t, path, nil)

	cp, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-03-31", cp.LastProcessedDate)
	assert.Equal(t, 6, cp.TotalProcessed)
	assert.Equal(t, 6, cp.TotalSucceeded)
	assert.Equal(t, []string{"2026-01-01", "2026-02-01", "2026-03-01"}, f.source.calls)
	assert.Len(t, f.store.records, 6)

	saved, err := f.cps.Load()
	require.NoError(t, err)
	assert.Equal(t, cp, saved)

	rec := f.store.records["2026-02-1"]
	require.NotNil(t, rec)
	assert.NotNil(t, rec.GoldPriceSnapshot)
	assert.NotEmpty(t, rec.MarketSession)
}

func TestBackfillRunner_ResumesAfterCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, NewCheckpointStore(path).Save(&models.PipelineCheckpoint{
		LastProcessedDate: "2026-01-31",
		TotalProcessed:    2,
		TotalSucceeded:    2,
	}))

	f := newBackfillFixture(t, path, nil)
	cp, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-02-01", "2026-03-01"}, f.source.calls)
	assert.Equal(t, "2026-03-31", cp.LastProcessedDate)
	assert.Equal(t, 6, cp.TotalSucceeded)
}

// crossMonthItems returns one story in January and a reworded copy of it in February
func crossMonthItems(start, end *time.Time) []*models.RawItem {
	switch start.Month() {
	case time.January:
		return []*models.RawItem{rawItem("jan-1", "Fed signals pause in rate hikes, gold rallies", start.Add(19*24*time.Hour))}
	case time.February:
		return []*models.RawItem{rawItem("feb-1", "Fed signals pause in rate hikes; gold rallies", start.Add(2*24*time.Hour))}
	}
	return nil
}

func TestBackfillRunner_ResumeKeepsCrossMonthDuplicates(t *testing.T) {
	// Uninterrupted baseline
	whole := newBackfillFixture(t, filepath.Join(t.TempDir(), "whole.json"), nil)
	whole.source.fetch = crossMonthItems
	_, err := whole.runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, whole.store.records, 1)

	// Same range split across two processes at the month boundary
	path := filepath.Join(t.TempDir(), "split.json")
	first := newBackfillFixture(t, path, nil)
	first.source.fetch = crossMonthItems
	first.runner.opts.End = time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	cp, err := first.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-01-31", cp.LastProcessedDate)

	second := newBackfillFixture(t, path, first.store)
	second.source.fetch = crossMonthItems
	cp, err = second.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-01", "2026-03-01"}, second.source.calls)
	assert.Equal(t, "2026-03-31", cp.LastProcessedDate)

	assert.Len(t, first.store.records, 1)
	assert.Contains(t, first.store.records, "jan-1")
	assert.NotContains(t, first.store.records, "feb-1")
}

func TestBackfillRunner_CorruptCheckpointIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	f := newBackfillFixture(t, path, nil)
	_, err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrCheckpointCorrupt)
	assert.Empty(t, f.source.calls)
}

func TestBackfillRunner_MonthFailurePausesAndContinues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	f := newBackfillFixture(t, path, nil)
	f.store.failSave = func(r *models.IntelligenceRecord) bool {
		return r.Timestamp.Month() == time.February
	}

	cp, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second}, f.pauses)
	assert.Equal(t, "2026-03-31", cp.LastProcessedDate)
	assert.Len(t, f.store.records, 4)
}

func TestBackfillRunner_CancelledBetweenMonths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	f := newBackfillFixture(t, path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	f.source.fetch = func(start, end *time.Time) []*models.RawItem {
		items := monthlyItems(start, end)
		if start.Month() == time.February {
			cancel()
		}
		return items
	}

	cp, err := f.runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	// January is checkpointed; February is repeated on the next run
	assert.Equal(t, "2026-01-31", cp.LastProcessedDate)
	assert.Equal(t, []string{"2026-01-01", "2026-02-01"}, f.source.calls)

	// A new process over the same store and checkpoint
	rerun := newBackfillFixture(t, path, f.store)
	cp, err = rerun.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-01", "2026-03-01"}, rerun.source.calls)
	assert.Len(t, f.store.records, 6)
	assert.Equal(t, "2026-03-31", cp.LastProcessedDate)
}

func TestEnricher_FillsOnlyMissing(t *testing.T) {
	store := newMemStore()
	at := time.Date(2026, 1, 14, 14, 0, 0, 0, time.UTC)
	complete := &models.IntelligenceRecord{
		ID:          "intel_keep",
		SourceID:    "keep",
		Timestamp:   at,
		DXYSnapshot: models.Float(99.5),
	}
	store.records["keep"] = complete
	store.records["other"] = &models.IntelligenceRecord{
		ID:        "intel_other",
		SourceID:  "other",
		Timestamp: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
	}

	prices := hourlyGold(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	enricher := NewEnricher(store, newProcessor(store, prices), 0, arbor.NewLogger())

	res, err := enricher.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &EnrichResult{Scanned: 2, Updated: 2, Months: 2}, res)
	assert.Equal(t, int32(2), prices.calls.Load())

	got := store.records["keep"]
	require.NotNil(t, got.GoldPriceSnapshot)
	assert.InDelta(t, 99.5, *got.DXYSnapshot, 1e-9)
	assert.Equal(t, models.SessionUS, got.MarketSession)
	assert.NotNil(t, got.ClusteringScore)
}

func TestBuildRecords_SkipsFailures(t *testing.T) {
	at := time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC)
	items := []*models.RawItem{rawItem("a", "x", at), rawItem("b", "y", at)}
	outcomes := []classifier.Outcome{
		{Kind: classifier.Failed, Err: fmt.Errorf("boom")},
		{Kind: classifier.Fallback, Provider: "deepseek", Analysis: &models.StructuredAnalysis{
			Summary:      models.NewLocalizedText(models.LangEN, "ok"),
			UrgencyScore: 4,
		}},
	}

	records := BuildRecords(items, outcomes, at, arbor.NewLogger())
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].SourceID)
	assert.Equal(t, "deepseek", records[0].Provider)
	assert.Equal(t, 1.5, records[0].UrgencyMultiplier)
}
