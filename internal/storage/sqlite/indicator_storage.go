package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

// IndicatorStorage implements interfaces.IndicatorStorage over gorm
type IndicatorStorage struct {
	db *gorm.DB
}

func (s *IndicatorStorage) SaveIndicator(ctx context.Context, indicator *models.MarketIndicator) error {
	indicator.Timestamp = indicator.Timestamp.UTC()
	indicator.ID = models.IndicatorID(indicator.Name, indicator.Timestamp)

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "percentile", "description"}),
		}).
		Create(indicator).Error
	if err != nil {
		return fmt.Errorf("failed to save indicator %s: %w", indicator.Name, err)
	}
	return nil
}

func (s *IndicatorStorage) GetLatestIndicator(ctx context.Context, name string) (*models.MarketIndicator, error) {
	return s.first(s.db.WithContext(ctx).Where("name = ?", name))
}

func (s *IndicatorStorage) GetIndicatorAt(ctx context.Context, name string, at time.Time) (*models.MarketIndicator, error) {
	return s.first(s.db.WithContext(ctx).Where("name = ? AND timestamp <= ?", name, at.UTC()))
}

func (s *IndicatorStorage) ListIndicators(ctx context.Context, name string) ([]*models.MarketIndicator, error) {
	var rows []*models.MarketIndicator
	if err := s.db.WithContext(ctx).Where("name = ?", name).Order("timestamp ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list indicators %s: %w", name, err)
	}
	return rows, nil
}

func (s *IndicatorStorage) first(query *gorm.DB) (*models.MarketIndicator, error) {
	var row models.MarketIndicator
	if err := query.Order("timestamp DESC").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query indicator: %w", err)
	}
	return &row, nil
}

// WatchlistStorage implements interfaces.WatchlistStorage over gorm
type WatchlistStorage struct {
	db *gorm.DB
}

func (s *WatchlistStorage) GetWatchlistCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := s.db.WithContext(ctx).Model(&models.WatchlistCode{}).Order("code ASC").Pluck("code", &codes).Error; err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	return codes, nil
}

func (s *WatchlistStorage) AddWatchlistCode(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("empty watchlist code")
	}
	row := &models.WatchlistCode{Code: code, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return fmt.Errorf("failed to add watchlist code: %w", err)
	}
	return nil
}

// KVStorage implements interfaces.KeyValueStorage over gorm
type KVStorage struct {
	db *gorm.DB
}

func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var pair interfaces.KeyValuePair
	err := s.db.WithContext(ctx).First(&pair, "`key` = ?", normalizeKey(key)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return pair.Value, nil
}

func (s *KVStorage) Set(ctx context.Context, key string, value string, description string) error {
	now := time.Now()
	pair := interfaces.KeyValuePair{
		Key:         normalizeKey(key),
		Value:       value,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
		}).
		Create(&pair).Error
	if err != nil {
		return fmt.Errorf("failed to set key/value: %w", err)
	}
	return nil
}

func (s *KVStorage) Delete(ctx context.Context, key string) error {
	result := s.db.WithContext(ctx).Where("`key` = ?", normalizeKey(key)).Delete(&interfaces.KeyValuePair{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return interfaces.ErrKeyNotFound
	}
	return nil
}

func (s *KVStorage) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	var pairs []interfaces.KeyValuePair
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&pairs).Error; err != nil {
		return nil, fmt.Errorf("failed to list key/value pairs: %w", err)
	}
	return pairs, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
