package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/aurum/internal/models"
)

// SourceAdapter discovers RawItems. start/end are nil in live mode.
// Fetch failures are logged by the adapter and reported as an empty result.
type SourceAdapter interface {
	Name() string
	Fetch(ctx context.Context, query string, start, end *time.Time) ([]*models.RawItem, error)
}

// PriceSeriesProvider returns ordered OHLCV samples for a symbol
type PriceSeriesProvider interface {
	Series(ctx context.Context, symbol string, start, end time.Time, resolution string) ([]models.PriceBar, error)
}

// NotificationChannel delivers a short alert
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, title, message string) error
}

// Embedder converts text into a vector for semantic comparison
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Classifier turns raw text into a StructuredAnalysis. ClassifyBatch results
// are aligned with texts; a nil entry means that item was not analysed.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string) (*models.StructuredAnalysis, error)
	ClassifyBatch(ctx context.Context, texts []string) ([]*models.StructuredAnalysis, error)
}
