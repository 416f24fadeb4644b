package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/aurum/internal/models"
)

// ErrNotFound is returned when a record or indicator does not exist
var ErrNotFound = errors.New("not found")

// IntelligenceStorage persists classified records. SaveIntelligence is
// idempotent on SourceID: a second save of the same SourceID returns the
// existing ID with created=false and a nil error.
type IntelligenceStorage interface {
	IsDuplicate(ctx context.Context, sourceID, url string) (bool, error)
	SaveIntelligence(ctx context.Context, record *models.IntelligenceRecord) (id string, created bool, err error)
	GetIntelligence(ctx context.Context, id string) (*models.IntelligenceRecord, error)

	// ListIntelligence returns records in [from, to) oldest first; zero bounds are open
	ListIntelligence(ctx context.Context, from, to time.Time) ([]*models.IntelligenceRecord, error)
	ListRecentEvents(ctx context.Context, since, until time.Time) ([]models.EventPoint, error)
	ListMissingEnrichment(ctx context.Context, limit int) ([]*models.IntelligenceRecord, error)
	UpdateEnrichment(ctx context.Context, record *models.IntelligenceRecord) error

	// DeleteIntelligenceBatch removes ids in a single transaction
	DeleteIntelligenceBatch(ctx context.Context, ids []string) (int, error)
	CountIntelligence(ctx context.Context) (int, error)
}

// IndicatorStorage persists MarketIndicator rows. Saving the same (name, timestamp) overwrites.
type IndicatorStorage interface {
	SaveIndicator(ctx context.Context, indicator *models.MarketIndicator) error
	GetLatestIndicator(ctx context.Context, name string) (*models.MarketIndicator, error)
	GetIndicatorAt(ctx context.Context, name string, at time.Time) (*models.MarketIndicator, error)
	ListIndicators(ctx context.Context, name string) ([]*models.MarketIndicator, error)
}

// WatchlistStorage exposes tracked codes to the valuation subsystem
type WatchlistStorage interface {
	GetWatchlistCodes(ctx context.Context) ([]string, error)
	AddWatchlistCode(ctx context.Context, code string) error
}

// StorageManager aggregates the storage backends
type StorageManager interface {
	IntelligenceStorage() IntelligenceStorage
	IndicatorStorage() IndicatorStorage
	WatchlistStorage() WatchlistStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
