package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

// IntelligenceStorage implements interfaces.IntelligenceStorage over gorm.
// The unique index on source_id enforces at-most-once persistence.
type IntelligenceStorage struct {
	db     *gorm.DB
	logger arbor.ILogger
}

func (s *IntelligenceStorage) IsDuplicate(ctx context.Context, sourceID, url string) (bool, error) {
	if sourceID == "" && url == "" {
		return false, nil
	}

	query := s.db.WithContext(ctx).Model(&models.IntelligenceRecord{})
	switch {
	case sourceID != "" && url != "":
		query = query.Where("source_id = ? OR url = ?", sourceID, url)
	case sourceID != "":
		query = query.Where("source_id = ?", sourceID)
	default:
		query = query.Where("url = ?", url)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return count > 0, nil
}

func (s *IntelligenceStorage) SaveIntelligence(ctx context.Context, record *models.IntelligenceRecord) (string, bool, error) {
	if record.SourceID == "" {
		return "", false, fmt.Errorf("record has no source id")
	}

	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = common.NewIntelligenceID()
	}
	record.Timestamp = record.Timestamp.UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_id"}}, DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return "", false, fmt.Errorf("failed to save intelligence: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return record.ID, true, nil
	}

	var existing models.IntelligenceRecord
	if err := s.db.WithContext(ctx).Select("id").Where("source_id = ?", record.SourceID).First(&existing).Error; err != nil {
		return "", false, fmt.Errorf("failed to load existing intelligence: %w", err)
	}
	s.logger.Debug().
		Str("source_id", record.SourceID).
		Str("existing_id", existing.ID).
		Msg("Intelligence already stored, skipping")
	return existing.ID, false, nil
}

func (s *IntelligenceStorage) GetIntelligence(ctx context.Context, id string) (*models.IntelligenceRecord, error) {
	var record models.IntelligenceRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get intelligence: %w", err)
	}
	return &record, nil
}

func (s *IntelligenceStorage) ListIntelligence(ctx context.Context, from, to time.Time) ([]*models.IntelligenceRecord, error) {
	query := s.db.WithContext(ctx).Order("timestamp ASC")
	if !from.IsZero() {
		query = query.Where("timestamp >= ?", from.UTC())
	}
	if !to.IsZero() {
		query = query.Where("timestamp < ?", to.UTC())
	}

	var records []*models.IntelligenceRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list intelligence: %w", err)
	}
	return records, nil
}

func (s *IntelligenceStorage) ListRecentEvents(ctx context.Context, since, until time.Time) ([]models.EventPoint, error) {
	records, err := s.ListIntelligence(ctx, since, until)
	if err != nil {
		return nil, err
	}
	points := make([]models.EventPoint, 0, len(records))
	for _, r := range records {
		points = append(points, r.Point())
	}
	return points, nil
}

func (s *IntelligenceStorage) ListMissingEnrichment(ctx context.Context, limit int) ([]*models.IntelligenceRecord, error) {
	query := s.db.WithContext(ctx).
		Where("gold_price_snapshot IS NULL OR dxy_snapshot IS NULL OR us10y_snapshot IS NULL OR gvz_snapshot IS NULL").
		Or("price_1h IS NULL OR price_24h IS NULL").
		Or("clustering_score IS NULL OR exhaustion_score IS NULL").
		Or("market_session = '' OR market_session IS NULL").
		Order("timestamp ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []*models.IntelligenceRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list records missing enrichment: %w", err)
	}
	return records, nil
}

func (s *IntelligenceStorage) UpdateEnrichment(ctx context.Context, record *models.IntelligenceRecord) error {
	record.UpdatedAt = time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.IntelligenceRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"gold_price_snapshot": record.GoldPriceSnapshot,
			"dxy_snapshot":        record.DXYSnapshot,
			"us10y_snapshot":      record.US10YSnapshot,
			"gvz_snapshot":        record.GVZSnapshot,
			"price_15m":           record.Price15m,
			"price_1h":            record.Price1h,
			"price_4h":            record.Price4h,
			"price_12h":           record.Price12h,
			"price_24h":           record.Price24h,
			"clustering_score":    record.ClusteringScore,
			"exhaustion_score":    record.ExhaustionScore,
			"market_session":      record.MarketSession,
			"updated_at":          record.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update intelligence %s: %w", record.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (s *IntelligenceStorage) DeleteIntelligenceBatch(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id IN ?", ids).Delete(&models.IntelligenceRecord{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete intelligence batch: %w", err)
	}
	return int(deleted), nil
}

func (s *IntelligenceStorage) CountIntelligence(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.IntelligenceRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count intelligence: %w", err)
	}
	return int(count), nil
}
