package models

// StructuredAnalysis is the classification payload returned by an LLM provider
type StructuredAnalysis struct {
	Index             int           `json:"index,omitempty"` // Position within a batch request
	Summary           LocalizedText `json:"summary" validate:"required"`
	Sentiment         LocalizedText `json:"sentiment"`
	SentimentScore    float64       `json:"sentiment_score" validate:"gte=-1,lte=1"`
	UrgencyScore      int           `json:"urgency_score" validate:"gte=1,lte=10"`
	MarketImplication LocalizedText `json:"market_implication"`
	ActionableAdvice  LocalizedText `json:"actionable_advice"`
}

// Direction returns the sign of the sentiment score with a small neutral band
func (a *StructuredAnalysis) Direction() int {
	return SentimentDirection(a.SentimentScore)
}

// SentimentDirection maps a score to -1, 0 or 1
func SentimentDirection(score float64) int {
	switch {
	case score > 0.1:
		return 1
	case score < -0.1:
		return -1
	default:
		return 0
	}
}
