// Package market provides quote and NAV history retrieval with caching
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/ldsbg/fundkeeper/internal/common"
	"github.com/ldsbg/fundkeeper/internal/interfaces"
	"github.com/ldsbg/fundkeeper/internal/models"
)

// Service implements MarketService. Quotes always go to the upstream
// endpoint since intraday estimates move constantly; NAV history is
// cached in storage and served stale when the upstream is down.
type Service struct {
	client  interfaces.FundDataClient
	storage interfaces.StorageManager
	logger  *common.Logger
	now     func() time.Time // injectable clock for testing
}

// NewService creates a new market service.
// storage may be nil, in which case history caching is skipped.
func NewService(client interfaces.FundDataClient, storage interfaces.StorageManager, logger *common.Logger) *Service {
	return &Service{
		client:  client,
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Quote retrieves the near-real-time valuation for a fund.
func (s *Service) Quote(ctx context.Context, fundID string) (*models.FundQuote, error) {
	quote, err := s.client.GetQuote(ctx, fundID)
	if err != nil {
		s.logger.Warn().Err(err).Str("fund", fundID).Msg("Quote fetch failed")
		return nil, fmt.Errorf("quote for fund %s: %w", fundID, err)
	}
	return quote, nil
}

// History returns the NAV series for the lookback window. A cached
// series covering the window is served while fresh; on upstream failure
// a stale cached series is still served rather than nothing.
func (s *Service) History(ctx context.Context, fundID string, days int) ([]models.NavPoint, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := s.now().AddDate(0, 0, -days)

	var cached *models.NavHistory
	if s.storage != nil {
		cached, _ = s.storage.MarketData().GetNavHistory(ctx, fundID)
	}

	if cached != nil && cached.Days >= days && common.IsFresh(cached.LastUpdated, common.FreshnessNavHistory) {
		return cached.WindowFrom(cutoff), nil
	}

	points, err := s.client.GetNavHistory(ctx, fundID, days)
	if err != nil {
		if cached != nil {
			s.logger.Warn().Err(err).Str("fund", fundID).Msg("History fetch failed, serving stale cache")
			return cached.WindowFrom(cutoff), nil
		}
		return nil, fmt.Errorf("nav history for fund %s: %w", fundID, err)
	}

	if s.storage != nil {
		history := &models.NavHistory{FundID: fundID, Days: days, Points: points}
		if err := s.storage.MarketData().SaveNavHistory(ctx, history); err != nil {
			s.logger.Warn().Err(err).Str("fund", fundID).Msg("Failed to cache nav history")
		}
	}

	return points, nil
}

// Ensure Service implements MarketService
var _ interfaces.MarketService = (*Service)(nil)
