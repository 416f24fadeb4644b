package eodhd

import (
	"time"
)

// EODData represents end-of-day price data.
type EODData struct {
	Date          time.Time `json:"-"`
	DateStr       string    `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
	Volume        float64   `json:"volume"`
}

// EODResponse is a slice of EODData.
type EODResponse []EODData

// IntradayData is one intraday bar. Timestamp is unix seconds in UTC.
type IntradayData struct {
	Timestamp int64   `json:"timestamp"`
	GMTOffset int     `json:"gmtoffset"`
	Datetime  string  `json:"datetime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Time returns the bar time in UTC.
func (d IntradayData) Time() time.Time {
	if d.Timestamp > 0 {
		return time.Unix(d.Timestamp, 0).UTC()
	}
	if t, err := time.Parse("2006-01-02 15:04:05", d.Datetime); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// IntradayResponse is a slice of IntradayData.
type IntradayResponse []IntradayData

// NewsItem represents a news article.
type NewsItem struct {
	Date      time.Time      `json:"-"`
	DateStr   string         `json:"date"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Link      string         `json:"link"`
	Symbols   []string       `json:"symbols"`
	Tags      []string       `json:"tags"`
	Sentiment *NewsSentiment `json:"sentiment,omitempty"`
}

// NewsSentiment represents sentiment analysis data for news.
type NewsSentiment struct {
	Polarity float64 `json:"polarity"`
	Neg      float64 `json:"neg"`
	Neu      float64 `json:"neu"`
	Pos      float64 `json:"pos"`
}

// NewsResponse is a slice of NewsItem.
type NewsResponse []NewsItem
