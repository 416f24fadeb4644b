package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

// IntelligenceStorage implements interfaces.IntelligenceStorage for Badger
type IntelligenceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex // serializes the SourceID uniqueness check with the insert
}

// NewIntelligenceStorage creates a new IntelligenceStorage instance
func NewIntelligenceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.IntelligenceStorage {
	return &IntelligenceStorage{
		db:     db,
		logger: logger,
	}
}

func (s *IntelligenceStorage) IsDuplicate(ctx context.Context, sourceID, url string) (bool, error) {
	if sourceID != "" {
		count, err := s.db.Store().Count(&models.IntelligenceRecord{}, badgerhold.Where("SourceID").Eq(sourceID).Index("SourceID"))
		if err != nil {
			return false, fmt.Errorf("failed to check duplicate source id: %w", err)
		}
		if count > 0 {
			return true, nil
		}
	}

	if url != "" {
		count, err := s.db.Store().Count(&models.IntelligenceRecord{}, badgerhold.Where("URL").Eq(url).Index("URL"))
		if err != nil {
			return false, fmt.Errorf("failed to check duplicate url: %w", err)
		}
		return count > 0, nil
	}

	return false, nil
}

func (s *IntelligenceStorage) SaveIntelligence(ctx context.Context, record *models.IntelligenceRecord) (string, bool, error) {
	if record.SourceID == "" {
		return "", false, fmt.Errorf("record has no source id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existingID string
	err := s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		var existing []models.IntelligenceRecord
		if err := s.db.Store().TxFind(tx, &existing, badgerhold.Where("SourceID").Eq(record.SourceID).Index("SourceID").Limit(1)); err != nil {
			return err
		}
		if len(existing) > 0 {
			existingID = existing[0].ID
			return nil
		}

		now := time.Now().UTC()
		if record.ID == "" {
			record.ID = common.NewIntelligenceID()
		}
		record.Timestamp = record.Timestamp.UTC()
		record.CreatedAt = now
		record.UpdatedAt = now
		return s.db.Store().TxInsert(tx, record.ID, record)
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to save intelligence: %w", err)
	}

	if existingID != "" {
		s.logger.Debug().
			Str("source_id", record.SourceID).
			Str("existing_id", existingID).
			Msg("Intelligence already stored, skipping")
		return existingID, false, nil
	}
	return record.ID, true, nil
}

func (s *IntelligenceStorage) GetIntelligence(ctx context.Context, id string) (*models.IntelligenceRecord, error) {
	var record models.IntelligenceRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get intelligence: %w", err)
	}
	return &record, nil
}

func (s *IntelligenceStorage) ListIntelligence(ctx context.Context, from, to time.Time) ([]*models.IntelligenceRecord, error) {
	var records []*models.IntelligenceRecord
	if err := s.db.Store().Find(&records, timeRange(from, to).SortBy("Timestamp")); err != nil {
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
	query := badgerhold.Where("Timestamp").MatchFunc(func(ra *badgerhold.RecordAccess) (bool, error) {
		record, ok := ra.Record().(*models.IntelligenceRecord)
		if !ok {
			return false, nil
		}
		return record.NeedsEnrichment(), nil
	}).SortBy("Timestamp")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []*models.IntelligenceRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list records missing enrichment: %w", err)
	}
	return records, nil
}

func (s *IntelligenceStorage) UpdateEnrichment(ctx context.Context, record *models.IntelligenceRecord) error {
	record.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Update(record.ID, record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to update intelligence %s: %w", record.ID, err)
	}
	return nil
}

func (s *IntelligenceStorage) DeleteIntelligenceBatch(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	err := s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		deleted = 0
		for _, id := range ids {
			err := s.db.Store().TxDelete(tx, id, &models.IntelligenceRecord{})
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete intelligence batch: %w", err)
	}
	return deleted, nil
}

func (s *IntelligenceStorage) CountIntelligence(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.IntelligenceRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count intelligence: %w", err)
	}
	return int(count), nil
}

// timeRange builds a [from, to) query on Timestamp; zero bounds are open
func timeRange(from, to time.Time) *badgerhold.Query {
	switch {
	case !from.IsZero() && !to.IsZero():
		return badgerhold.Where("Timestamp").Ge(from.UTC()).And("Timestamp").Lt(to.UTC())
	case !from.IsZero():
		return badgerhold.Where("Timestamp").Ge(from.UTC())
	case !to.IsZero():
		return badgerhold.Where("Timestamp").Lt(to.UTC())
	default:
		return &badgerhold.Query{}
	}
}
