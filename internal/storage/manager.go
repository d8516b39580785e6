package storage

import (
	"github.com/ldsbg/fundkeeper/internal/common"
	"github.com/ldsbg/fundkeeper/internal/interfaces"
)

// Manager aggregates the storage areas behind a single handle.
type Manager struct {
	fs      *FileStore
	ledgers *ledgerStorage
	market  *marketDataStorage
	logger  *common.Logger
}

// NewStorageManager opens the file store and wires up the storage areas.
func NewStorageManager(logger *common.Logger, config *common.StorageConfig) (*Manager, error) {
	fs, err := NewFileStore(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		fs:      fs,
		ledgers: newLedgerStorage(fs, logger),
		market:  newMarketDataStorage(fs, logger),
		logger:  logger,
	}, nil
}

func (m *Manager) Ledgers() interfaces.LedgerStore {
	return m.ledgers
}

func (m *Manager) MarketData() interfaces.MarketDataStore {
	return m.market
}

func (m *Manager) WriteRaw(subdir, key string, data []byte) error {
	return m.fs.WriteRaw(subdir, key, data)
}

func (m *Manager) DataPath() string {
	return m.fs.basePath
}

// Close is a no-op for file-backed storage; it exists so callers can
// treat the manager like any other resource.
func (m *Manager) Close() error {
	return nil
}

// Ensure Manager implements StorageManager
var _ interfaces.StorageManager = (*Manager)(nil)
