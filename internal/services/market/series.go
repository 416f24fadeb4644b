// Package market aligns events with gold and macro price series
package market

import (
	"slices"
	"sort"
	"time"

	"github.com/ternarybob/aurum/internal/models"
)

// DefaultMaxGap is the furthest a sample may lie after the requested time
const DefaultMaxGap = 96 * time.Hour

// PriceSeries is an immutable time-ordered set of bars for one asset
type PriceSeries struct {
	bars   []models.PriceBar
	maxGap time.Duration
}

// NewPriceSeries copies and sorts bars by UTC time
func NewPriceSeries(bars []models.PriceBar, maxGap time.Duration) *PriceSeries {
	if maxGap <= 0 {
		maxGap = DefaultMaxGap
	}
	sorted := make([]models.PriceBar, len(bars))
	for i, b := range bars {
		b.Time = b.Time.UTC()
		sorted[i] = b
	}
	slices.SortStableFunc(sorted, func(a, b models.PriceBar) int {
		return a.Time.Compare(b.Time)
	})
	return &PriceSeries{bars: sorted, maxGap: maxGap}
}

// Len returns the number of bars
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bars)
}

// At returns the first bar at or after t. Bars further than the gap bound
// after t are rejected so stale data never stands in for a missing sample.
func (s *PriceSeries) At(t time.Time) (*models.PriceBar, bool) {
	if s == nil || len(s.bars) == 0 {
		return nil, false
	}
	t = t.UTC()
	i := sort.Search(len(s.bars), func(i int) bool {
		return !s.bars[i].Time.Before(t)
	})
	if i == len(s.bars) {
		return nil, false
	}
	if s.bars[i].Time.Sub(t) > s.maxGap {
		return nil, false
	}
	bar := s.bars[i]
	return &bar, true
}

// CloseAt returns the close of At(t), nil when absent
func (s *PriceSeries) CloseAt(t time.Time) *float64 {
	bar, ok := s.At(t)
	if !ok {
		return nil
	}
	return models.Float(bar.Close)
}

// PercentChange returns (later-base)/base*100, nil when either side is missing or base is zero
func PercentChange(base, later *float64) *float64 {
	if base == nil || later == nil || *base == 0 {
		return nil
	}
	return models.Float((*later - *base) / *base * 100)
}
