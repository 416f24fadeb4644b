package models

import (
	"time"
)

// Asset identifies one of the correlated market series
type Asset string

const (
	AssetGold  Asset = "gold"
	AssetDXY   Asset = "dxy"
	AssetUS10Y Asset = "us10y"
	AssetGVZ   Asset = "gvz"
)

// Assets lists every correlated asset in a stable order
var Assets = []Asset{AssetGold, AssetDXY, AssetUS10Y, AssetGVZ}

// PriceBar is one OHLCV sample
type PriceBar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Snapshot holds the asset prices aligned to an event and its outcome horizons.
// A nil field means no sample within the gap bound.
type Snapshot struct {
	Gold     *float64
	DXY      *float64
	US10Y    *float64
	GVZ      *float64
	Price15m *float64
	Price1h  *float64
	Price4h  *float64
	Price12h *float64
	Price24h *float64
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
