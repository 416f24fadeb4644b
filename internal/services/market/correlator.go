package market

import (
	"time"

	"github.com/ternarybob/aurum/internal/models"
)

// DefaultHorizons are the gold outcome offsets recorded on every event
var DefaultHorizons = []time.Duration{15 * time.Minute, time.Hour, 4 * time.Hour, 12 * time.Hour, 24 * time.Hour}

// Correlator reads prices around an event from prefetched series
type Correlator struct {
	horizons []time.Duration
}

// NewCorrelator creates a correlator. Only horizons with a Snapshot field
// (15m, 1h, 4h, 12h, 24h) are recorded.
func NewCorrelator(horizons []time.Duration) *Correlator {
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}
	return &Correlator{horizons: horizons}
}

// Snapshot fills asset prices at the event and gold at each horizon. A
// missing series leaves its fields nil.
func (c *Correlator) Snapshot(event time.Time, series map[models.Asset]*PriceSeries) models.Snapshot {
	event = event.UTC()
	var snap models.Snapshot

	gold := series[models.AssetGold]
	snap.Gold = gold.CloseAt(event)
	snap.DXY = series[models.AssetDXY].CloseAt(event)
	snap.US10Y = series[models.AssetUS10Y].CloseAt(event)
	snap.GVZ = series[models.AssetGVZ].CloseAt(event)

	for _, h := range c.horizons {
		v := gold.CloseAt(event.Add(h))
		switch h {
		case 15 * time.Minute:
			snap.Price15m = v
		case time.Hour:
			snap.Price1h = v
		case 4 * time.Hour:
			snap.Price4h = v
		case 12 * time.Hour:
			snap.Price12h = v
		case 24 * time.Hour:
			snap.Price24h = v
		}
	}
	return snap
}

// ParseHorizons converts duration strings, skipping invalid entries
func ParseHorizons(values []string) []time.Duration {
	var out []time.Duration
	for _, v := range values {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			out = append(out, d)
		}
	}
	return out
}
