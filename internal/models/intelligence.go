package models

import (
	"time"
)

// MarketSession is the trading session an event falls into
type MarketSession string

const (
	SessionAsia   MarketSession = "ASIA"
	SessionEurope MarketSession = "EUROPE"
	SessionUS     MarketSession = "US"
	SessionClosed MarketSession = "CLOSED"
)

// IntelligenceRecord is the durable output of the pipeline
type IntelligenceRecord struct {
	ID                string        `json:"id" badgerhold:"key" gorm:"primaryKey;size:64"`
	Timestamp         time.Time     `json:"timestamp" badgerhold:"index" gorm:"index"`
	SourceID          string        `json:"source_id" badgerhold:"index" gorm:"uniqueIndex;size:512"`
	Author            string        `json:"author"`
	Content           string        `json:"content"`
	URL               string        `json:"url" badgerhold:"index" gorm:"index"`
	SourceTier        int           `json:"source_tier"`
	UrgencyMultiplier float64       `json:"urgency_multiplier"`
	Summary           LocalizedText `json:"summary" gorm:"serializer:json;type:text"`
	Sentiment         LocalizedText `json:"sentiment" gorm:"serializer:json;type:text"`
	SentimentScore    float64       `json:"sentiment_score"`
	MarketImplication LocalizedText `json:"market_implication" gorm:"serializer:json;type:text"`
	ActionableAdvice  LocalizedText `json:"actionable_advice" gorm:"serializer:json;type:text"`
	UrgencyScore      int           `json:"urgency_score"`
	Provider          string        `json:"provider"`

	GoldPriceSnapshot *float64 `json:"gold_price_snapshot" gorm:"column:gold_price_snapshot"`
	DXYSnapshot       *float64 `json:"dxy_snapshot" gorm:"column:dxy_snapshot"`
	US10YSnapshot     *float64 `json:"us10y_snapshot" gorm:"column:us10y_snapshot"`
	GVZSnapshot       *float64 `json:"gvz_snapshot" gorm:"column:gvz_snapshot"`
	Price15m          *float64 `json:"price_15m" gorm:"column:price_15m"`
	Price1h           *float64 `json:"price_1h" gorm:"column:price_1h"`
	Price4h           *float64 `json:"price_4h" gorm:"column:price_4h"`
	Price12h          *float64 `json:"price_12h" gorm:"column:price_12h"`
	Price24h          *float64 `json:"price_24h" gorm:"column:price_24h"`

	ClusteringScore *float64      `json:"clustering_score"`
	ExhaustionScore *float64      `json:"exhaustion_score"`
	MarketSession   MarketSession `json:"market_session"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the SQL table name
func (IntelligenceRecord) TableName() string {
	return "intelligence"
}

// ApplySnapshot copies price fields, filling only those still nil when onlyMissing is set
func (r *IntelligenceRecord) ApplySnapshot(s Snapshot, onlyMissing bool) {
	set := func(dst **float64, v *float64) {
		if onlyMissing && *dst != nil {
			return
		}
		*dst = v
	}
	set(&r.GoldPriceSnapshot, s.Gold)
	set(&r.DXYSnapshot, s.DXY)
	set(&r.US10YSnapshot, s.US10Y)
	set(&r.GVZSnapshot, s.GVZ)
	set(&r.Price15m, s.Price15m)
	set(&r.Price1h, s.Price1h)
	set(&r.Price4h, s.Price4h)
	set(&r.Price12h, s.Price12h)
	set(&r.Price24h, s.Price24h)
}

// NeedsEnrichment reports whether any enrichment column is still empty
func (r *IntelligenceRecord) NeedsEnrichment() bool {
	return r.GoldPriceSnapshot == nil ||
		r.DXYSnapshot == nil ||
		r.US10YSnapshot == nil ||
		r.GVZSnapshot == nil ||
		r.Price1h == nil ||
		r.Price24h == nil ||
		r.ClusteringScore == nil ||
		r.ExhaustionScore == nil ||
		r.MarketSession == ""
}

// DedupText returns the text used for semantic comparison: the English
// summary when it carries enough content, else the raw content
func (r *IntelligenceRecord) DedupText() string {
	if s := r.Summary.Get(LangEN); len(s) > 20 {
		return s
	}
	return r.Content
}

// EventPoint is the minimal view of a past record used by the signal engine
type EventPoint struct {
	Time      time.Time
	Weight    float64
	Direction int
}

// Point projects a record onto an EventPoint
func (r *IntelligenceRecord) Point() EventPoint {
	w := r.UrgencyMultiplier
	if w <= 0 {
		w = 1
	}
	return EventPoint{
		Time:      r.Timestamp.UTC(),
		Weight:    w,
		Direction: SentimentDirection(r.SentimentScore),
	}
}
