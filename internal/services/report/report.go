// Package report builds the monthly backtest of stored intelligence against
// the gold moves that followed it
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/services/market"
	"github.com/ternarybob/aurum/internal/signals"
)

const monthLayout = "2006-01"

// Row is one record with its realised gold reaction
type Row struct {
	Record    *models.IntelligenceRecord
	Direction int
	Change1h  *float64 // percent vs the snapshot
	Change24h *float64
	Clustered bool
}

// Hit reports whether the move over the horizon agreed with the direction.
// ok is false when the direction is neutral or the change is unknown.
func (r Row) Hit(change *float64) (hit, ok bool) {
	if r.Direction == 0 || change == nil || *change == 0 {
		return false, false
	}
	return (*change > 0) == (r.Direction > 0), true
}

// HitStats counts directional agreement for one sentiment sign
type HitStats struct {
	Events       int
	Evaluated1h  int
	Hits1h       int
	Evaluated24h int
	Hits24h      int
}

// Rate1h is the 1h hit rate in percent, 0 with nothing evaluated
func (h HitStats) Rate1h() float64 {
	return rate(h.Hits1h, h.Evaluated1h)
}

// Rate24h is the 24h hit rate in percent
func (h HitStats) Rate24h() float64 {
	return rate(h.Hits24h, h.Evaluated24h)
}

func rate(hits, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(hits) / float64(n) * 100
}

// Stats groups hit counts by sentiment sign
type Stats struct {
	Bullish HitStats
	Bearish HitStats
}

func (s *Stats) add(row Row) {
	var h *HitStats
	switch row.Direction {
	case 1:
		h = &s.Bullish
	case -1:
		h = &s.Bearish
	default:
		return
	}
	h.Events++
	if hit, ok := row.Hit(row.Change1h); ok {
		h.Evaluated1h++
		if hit {
			h.Hits1h++
		}
	}
	if hit, ok := row.Hit(row.Change24h); ok {
		h.Evaluated24h++
		if hit {
			h.Hits24h++
		}
	}
}

// Report is the monthly backtest
type Report struct {
	Month      time.Time
	Generated  time.Time
	Rows       []Row
	All        Stats
	Clean      Stats // clustered events excluded
	Clustered  int
	Simulation *Simulation
}

// Title names the report
func (r *Report) Title() string {
	return "Gold Intelligence Report " + r.Month.Format(monthLayout)
}

// Generator assembles reports from stored records
type Generator struct {
	store      interfaces.IntelligenceStorage
	engine     *signals.Engine
	capital    float64
	holdPeriod time.Duration
	logger     arbor.ILogger
	now        func() time.Time
}

// NewGenerator creates a generator. capital and holdPeriod drive the trade simulation.
func NewGenerator(store interfaces.IntelligenceStorage, engine *signals.Engine, capital float64, holdPeriod time.Duration, logger arbor.ILogger) *Generator {
	if capital <= 0 {
		capital = DefaultInitialCapital
	}
	if holdPeriod <= 0 {
		holdPeriod = time.Hour
	}
	return &Generator{
		store:      store,
		engine:     engine,
		capital:    capital,
		holdPeriod: holdPeriod,
		logger:     logger,
		now:        time.Now,
	}
}

// ParseMonth parses YYYY-MM into the first instant of that month in UTC
func ParseMonth(value string) (time.Time, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", value, err)
	}
	return t.UTC(), nil
}

// Build loads the month's records and computes the statistics
func (g *Generator) Build(ctx context.Context, month time.Time) (*Report, error) {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	records, err := g.store.ListIntelligence(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list records for %s: %w", from.Format(monthLayout), err)
	}

	rep := &Report{
		Month:     from,
		Generated: g.now().UTC(),
		Rows:      make([]Row, 0, len(records)),
	}
	for _, rec := range records {
		row := Row{
			Record:    rec,
			Direction: Direction(rec),
			Change1h:  market.PercentChange(rec.GoldPriceSnapshot, rec.Price1h),
			Change24h: market.PercentChange(rec.GoldPriceSnapshot, rec.Price24h),
			Clustered: g.engine.IsClustered(rec),
		}
		rep.Rows = append(rep.Rows, row)
		rep.All.add(row)
		if row.Clustered {
			rep.Clustered++
			continue
		}
		rep.Clean.add(row)
	}
	rep.Simulation = Simulate(rep.Rows, g.capital, g.holdPeriod)

	g.logger.Info().
		Str("month", from.Format(monthLayout)).
		Int("records", len(records)).
		Int("clustered", rep.Clustered).
		Int("trades", len(rep.Simulation.Trades)).
		Msg("Report built")

	return rep, nil
}

var (
	bullishTerms = []string{"bullish", "safe-haven", "positive", "upward"}
	bearishTerms = []string{"bearish", "negative", "downward", "pressure"}
)

// Direction reads the trade direction from the English sentiment label,
// falling back to the sign of the sentiment score
func Direction(rec *models.IntelligenceRecord) int {
	label := strings.ToLower(rec.Sentiment.Get(models.LangEN))
	for _, term := range bullishTerms {
		if strings.Contains(label, term) {
			return 1
		}
	}
	for _, term := range bearishTerms {
		if strings.Contains(label, term) {
			return -1
		}
	}
	return models.SentimentDirection(rec.SentimentScore)
}
