package signals

import (
	"time"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/models"
)

// Engine scores records against the events that preceded them
type Engine struct {
	ClusterWindow      time.Duration
	ClusterThreshold   float64
	ExhaustionWindow   time.Duration
	ExhaustionHalfLife time.Duration
}

// NewEngine creates an engine from configuration
func NewEngine(config *common.SignalsConfig) *Engine {
	return &Engine{
		ClusterWindow:      common.MustDuration(config.ClusterWindow, DefaultClusterWindow),
		ClusterThreshold:   config.ClusterThreshold,
		ExhaustionWindow:   common.MustDuration(config.ExhaustionWindow, DefaultExhaustionWindow),
		ExhaustionHalfLife: common.MustDuration(config.ExhaustionHalfLife, DefaultExhaustionHalfLife),
	}
}

// Lookback is how far back events must reach to score any record
func (e *Engine) Lookback() time.Duration {
	return max(e.ClusterWindow, e.ExhaustionWindow)
}

// Apply sets the session and, when onlyMissing is false or the field is
// empty, the clustering and exhaustion scores.
func (e *Engine) Apply(r *models.IntelligenceRecord, events []models.EventPoint, onlyMissing bool) {
	at := r.Timestamp.UTC()

	if !onlyMissing || r.MarketSession == "" {
		r.MarketSession = SessionAt(at)
	}
	if !onlyMissing || r.ClusteringScore == nil {
		r.ClusteringScore = models.Float(ClusteringScore(events, at, e.ClusterWindow))
	}
	if !onlyMissing || r.ExhaustionScore == nil {
		dir := models.SentimentDirection(r.SentimentScore)
		r.ExhaustionScore = models.Float(ExhaustionScore(events, at, dir, e.ExhaustionWindow, e.ExhaustionHalfLife))
	}
}

// IsClustered reports whether the record's clustering score crosses the threshold
func (e *Engine) IsClustered(r *models.IntelligenceRecord) bool {
	return r.ClusteringScore != nil && IsClustered(*r.ClusteringScore, e.ClusterThreshold)
}
