package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db           *BadgerDB
	intelligence interfaces.IntelligenceStorage
	indicator    interfaces.IndicatorStorage
	watchlist    interfaces.WatchlistStorage
	kv           interfaces.KeyValueStorage
	logger       arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:           db,
		intelligence: NewIntelligenceStorage(db, logger),
		indicator:    NewIndicatorStorage(db, logger),
		watchlist:    NewWatchlistStorage(db, logger),
		kv:           NewKVStorage(db, logger),
		logger:       logger,
	}
}

// IntelligenceStorage returns the record storage interface
func (m *Manager) IntelligenceStorage() interfaces.IntelligenceStorage {
	return m.intelligence
}

// IndicatorStorage returns the indicator storage interface
func (m *Manager) IndicatorStorage() interfaces.IndicatorStorage {
	return m.indicator
}

// WatchlistStorage returns the watchlist storage interface
func (m *Manager) WatchlistStorage() interfaces.WatchlistStorage {
	return m.watchlist
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Close closes the underlying database
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing Badger storage manager")
	return m.db.Close()
}
