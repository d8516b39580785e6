package interfaces

import (
	"context"

	"github.com/ldsbg/fundkeeper/internal/ledger"
	"github.com/ldsbg/fundkeeper/internal/models"
)

// MarketService provides quotes and NAV history with caching policy applied.
type MarketService interface {
	Quote(ctx context.Context, fundID string) (*models.FundQuote, error)
	History(ctx context.Context, fundID string, days int) ([]models.NavPoint, error)
}

// PortfolioService owns per-user ledger reads and mutations.
//
// Mutations price at the live quote and fail with a quote-unavailable
// error when no quote can be fetched. Snapshot degrades gracefully
// instead: funds without quotes are listed as stale and excluded from
// totals.
type PortfolioService interface {
	Buy(ctx context.Context, user, fundID string, amount float64) (*ledger.Position, error)
	Reconcile(ctx context.Context, user, fundID string, amount, priorPrincipal, priorProfit float64) (*ledger.Position, error)
	SellShares(ctx context.Context, user, fundID string, shares float64) (*ledger.Transaction, error)
	SellAmount(ctx context.Context, user, fundID string, amount float64) (*ledger.Transaction, error)
	SellAll(ctx context.Context, user, fundID string) (*ledger.Transaction, error)
	Liquidate(ctx context.Context, user, fundID string) (*ledger.Transaction, error)

	Snapshot(ctx context.Context, user string) (*models.PortfolioSnapshot, error)
	Transactions(ctx context.Context, user, fundFilter string) ([]ledger.Transaction, error)
	AssetHistory(ctx context.Context, user string) ([]ledger.AssetPoint, error)
	RenderAssetChart(ctx context.Context, user string) ([]byte, error)
	Purge(ctx context.Context, user string) error
}
