// Package signals derives event-level signals from past intelligence and
// market indicators
package signals

import (
	"time"

	"github.com/ternarybob/aurum/internal/models"
)

// Defaults for the event signals
const (
	DefaultClusterWindow      = 60 * time.Minute
	DefaultClusterThreshold   = 3.0
	DefaultExhaustionWindow   = 6 * time.Hour
	DefaultExhaustionHalfLife = 2 * time.Hour
)

// ClusteringScore is the urgency-weighted count of events in [at-window, at)
// per hour of window. Events at or after at are ignored.
func ClusteringScore(events []models.EventPoint, at time.Time, window time.Duration) float64 {
	if window <= 0 {
		window = DefaultClusterWindow
	}
	from := at.Add(-window)

	sum := 0.0
	for _, e := range events {
		if e.Time.Before(from) || !e.Time.Before(at) {
			continue
		}
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		sum += w
	}
	return round(sum/window.Hours(), 4)
}

// IsClustered reports whether a score marks a news pile-up
func IsClustered(score, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultClusterThreshold
	}
	return score >= threshold
}
