package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/ternarybob/arbor"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

// OpenDB opens (or creates) the SQLite database and migrates the schema
func OpenDB(log arbor.ILogger, config *common.SQLiteConfig) (*gorm.DB, error) {
	if dir := filepath.Dir(config.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	log.Debug().Str("path", config.Path).Msg("Opening SQLite database connection")

	db, err := gorm.Open(sqlite.Open(config.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.IntelligenceRecord{},
		&models.MarketIndicator{},
		&models.WatchlistCode{},
		&interfaces.KeyValuePair{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}

	return db, nil
}

// Manager implements the StorageManager interface over gorm
type Manager struct {
	db           *gorm.DB
	intelligence interfaces.IntelligenceStorage
	indicator    interfaces.IndicatorStorage
	watchlist    interfaces.WatchlistStorage
	kv           interfaces.KeyValueStorage
	logger       arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(log arbor.ILogger, config *common.SQLiteConfig) (interfaces.StorageManager, error) {
	db, err := OpenDB(log, config)
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", config.Path).Msg("SQLite storage manager initialized")

	return &Manager{
		db:           db,
		intelligence: &IntelligenceStorage{db: db, logger: log},
		indicator:    &IndicatorStorage{db: db},
		watchlist:    &WatchlistStorage{db: db},
		kv:           &KVStorage{db: db},
		logger:       log,
	}, nil
}

func (m *Manager) IntelligenceStorage() interfaces.IntelligenceStorage { return m.intelligence }
func (m *Manager) IndicatorStorage() interfaces.IndicatorStorage       { return m.indicator }
func (m *Manager) WatchlistStorage() interfaces.WatchlistStorage       { return m.watchlist }
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage         { return m.kv }

// Close closes the underlying connection pool
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
