// Package interfaces defines contracts between FundKeeper components
package interfaces

import (
	"context"

	"github.com/ldsbg/fundkeeper/internal/models"
)

// FundDataClient retrieves fund market data from the upstream provider.
type FundDataClient interface {
	// GetQuote fetches the near-real-time valuation for a fund.
	// Any failure (transport, status, malformed payload) is an error;
	// the client never fabricates a zero quote.
	GetQuote(ctx context.Context, fundID string) (*models.FundQuote, error)

	// GetNavHistory fetches published NAVs for the lookback window,
	// sorted ascending by date.
	GetNavHistory(ctx context.Context, fundID string, days int) ([]models.NavPoint, error)
}
