package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

// IndicatorStorage implements interfaces.IndicatorStorage for Badger
type IndicatorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewIndicatorStorage creates a new IndicatorStorage instance
func NewIndicatorStorage(db *BadgerDB, logger arbor.ILogger) interfaces.IndicatorStorage {
	return &IndicatorStorage{
		db:     db,
		logger: logger,
	}
}

// SaveIndicator upserts on (name, timestamp) so re-running an import is idempotent
func (s *IndicatorStorage) SaveIndicator(ctx context.Context, indicator *models.MarketIndicator) error {
	indicator.Timestamp = indicator.Timestamp.UTC()
	indicator.ID = models.IndicatorID(indicator.Name, indicator.Timestamp)

	if err := s.db.Store().Upsert(indicator.ID, indicator); err != nil {
		return fmt.Errorf("failed to save indicator %s: %w", indicator.Name, err)
	}
	return nil
}

func (s *IndicatorStorage) GetLatestIndicator(ctx context.Context, name string) (*models.MarketIndicator, error) {
	return s.findOne(badgerhold.Where("Name").Eq(name).Index("Name"))
}

// GetIndicatorAt returns the latest row at or before at
func (s *IndicatorStorage) GetIndicatorAt(ctx context.Context, name string, at time.Time) (*models.MarketIndicator, error) {
	return s.findOne(badgerhold.Where("Name").Eq(name).Index("Name").And("Timestamp").Le(at.UTC()))
}

func (s *IndicatorStorage) ListIndicators(ctx context.Context, name string) ([]*models.MarketIndicator, error) {
	var rows []*models.MarketIndicator
	if err := s.db.Store().Find(&rows, badgerhold.Where("Name").Eq(name).Index("Name").SortBy("Timestamp")); err != nil {
		return nil, fmt.Errorf("failed to list indicators %s: %w", name, err)
	}
	return rows, nil
}

func (s *IndicatorStorage) findOne(query *badgerhold.Query) (*models.MarketIndicator, error) {
	var rows []*models.MarketIndicator
	if err := s.db.Store().Find(&rows, query.SortBy("Timestamp").Reverse().Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to query indicator: %w", err)
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return rows[0], nil
}
