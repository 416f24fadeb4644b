package models

import (
	"time"
)

// Source tiers assigned by the quality filter
const (
	TierBlocked = -1
	TierOne     = 1
	TierTwo     = 2
	TierThree   = 3
)

// RawItem is one discovered news/statement unit from a source adapter.
// It is immutable once produced.
type RawItem struct {
	SourceID          string     `json:"source_id"`
	Source            string     `json:"source"` // Adapter name
	Author            string     `json:"author"` // Outlet name
	Title             string     `json:"title"`
	Content           string     `json:"content"` // "title. summary"
	URL               string     `json:"url"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	SourceTier        int        `json:"source_tier"`
	UrgencyMultiplier float64    `json:"urgency_multiplier"`
}

// EventTime returns the UTC publication time, or fallback when the source did not report one
func (r *RawItem) EventTime(fallback time.Time) time.Time {
	if r.PublishedAt == nil || r.PublishedAt.IsZero() {
		return fallback.UTC()
	}
	return r.PublishedAt.UTC()
}
