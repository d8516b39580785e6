package interfaces

import (
	"context"

	"github.com/ldsbg/fundkeeper/internal/ledger"
	"github.com/ldsbg/fundkeeper/internal/models"
)

// LedgerStore persists per-user ledger documents.
type LedgerStore interface {
	// Load returns the user's ledger. A missing, empty, or unparsable
	// document yields a fresh empty ledger, never an error.
	Load(ctx context.Context, user string) (*ledger.Ledger, error)
	Save(ctx context.Context, l *ledger.Ledger) error
	Delete(ctx context.Context, user string) error
	ListUsers(ctx context.Context) ([]string, error)
}

// MarketDataStore caches fetched market data.
type MarketDataStore interface {
	GetNavHistory(ctx context.Context, fundID string) (*models.NavHistory, error)
	SaveNavHistory(ctx context.Context, history *models.NavHistory) error
}

// StorageManager provides access to all storage areas.
type StorageManager interface {
	Ledgers() LedgerStore
	MarketData() MarketDataStore

	// WriteRaw persists binary artifacts such as rendered charts.
	WriteRaw(subdir, key string, data []byte) error

	DataPath() string
	Close() error
}
