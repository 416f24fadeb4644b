package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

// WatchlistStorage implements interfaces.WatchlistStorage for Badger
type WatchlistStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWatchlistStorage creates a new WatchlistStorage instance
func NewWatchlistStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WatchlistStorage {
	return &WatchlistStorage{
		db:     db,
		logger: logger,
	}
}

func (s *WatchlistStorage) GetWatchlistCodes(ctx context.Context) ([]string, error) {
	var rows []models.WatchlistCode
	if err := s.db.Store().Find(&rows, (&badgerhold.Query{}).SortBy("Code")); err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	codes := make([]string, 0, len(rows))
	for _, r := range rows {
		codes = append(codes, r.Code)
	}
	return codes, nil
}

func (s *WatchlistStorage) AddWatchlistCode(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("empty watchlist code")
	}
	row := &models.WatchlistCode{Code: code, CreatedAt: time.Now().UTC()}
	if err := s.db.Store().Upsert(code, row); err != nil {
		return fmt.Errorf("failed to add watchlist code: %w", err)
	}
	return nil
}
