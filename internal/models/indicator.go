package models

import (
	"fmt"
	"time"
)

// Indicator names
const (
	IndicatorCOTGoldNet = "COT_GOLD_NET"
	IndicatorFedRegime  = "FED_REGIME"
)

// MarketIndicator is one row of a named scalar time series
type MarketIndicator struct {
	ID          string    `json:"id" badgerhold:"key" gorm:"primaryKey;size:160"`
	Timestamp   time.Time `json:"timestamp" badgerhold:"index" gorm:"uniqueIndex:idx_indicator_name_ts"`
	Name        string    `json:"name" badgerhold:"index" gorm:"uniqueIndex:idx_indicator_name_ts;size:64"`
	Value       float64   `json:"value"`
	Percentile  *float64  `json:"percentile,omitempty"`
	Description string    `json:"description"`
}

// TableName sets the SQL table name
func (MarketIndicator) TableName() string {
	return "market_indicators"
}

// IndicatorID derives the deterministic key for (name, timestamp)
func IndicatorID(name string, ts time.Time) string {
	return fmt.Sprintf("%s|%s", name, ts.UTC().Format(time.RFC3339))
}

// WatchlistCode is a tracked instrument code used by the valuation subsystem
type WatchlistCode struct {
	Code      string    `json:"code" badgerhold:"key" gorm:"primaryKey;size:32"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName sets the SQL table name
func (WatchlistCode) TableName() string {
	return "watchlist"
}
