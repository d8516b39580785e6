// Package portfolio owns per-user ledger reads and mutations
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ldsbg/fundkeeper/internal/common"
	"github.com/ldsbg/fundkeeper/internal/interfaces"
	"github.com/ldsbg/fundkeeper/internal/ledger"
	"github.com/ldsbg/fundkeeper/internal/models"
)

var (
	// ErrQuoteUnavailable aborts a mutation that needed a live price.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrPersistence reports a failed ledger write.
	ErrPersistence = errors.New("persistence failure")
)

// Service implements PortfolioService. Mutations for the same user are
// serialized with a per-user mutex so concurrent requests cannot
// interleave the load-apply-save cycle within this process. Cross-process
// writers remain last-write-wins at the file layer.
type Service struct {
	storage interfaces.StorageManager
	market  interfaces.MarketService
	logger  *common.Logger
	now     func() time.Time // injectable clock for testing

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a new portfolio service.
func NewService(storage interfaces.StorageManager, market interfaces.MarketService, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		market:  market,
		logger:  logger,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) userLock(user string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[user]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[user] = lock
	}
	return lock
}

// quoteFor fetches the live quote a mutation prices at.
func (s *Service) quoteFor(ctx context.Context, fundID string) (*models.FundQuote, error) {
	quote, err := s.market.Quote(ctx, fundID)
	if err != nil {
		return nil, fmt.Errorf("fund %s: %w", fundID, ErrQuoteUnavailable)
	}
	return quote, nil
}

func (s *Service) save(ctx context.Context, l *ledger.Ledger) error {
	if err := s.storage.Ledgers().Save(ctx, l); err != nil {
		s.logger.Error().Err(err).Str("user", l.User).Msg("Ledger save failed")
		return fmt.Errorf("user %s: %w", l.User, ErrPersistence)
	}
	return nil
}

// Buy adds money to a position at the live estimate.
func (s *Service) Buy(ctx context.Context, user, fundID string, amount float64) (*ledger.Position, error) {
	if amount < 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	quote, err := s.quoteFor(ctx, fundID)
	if err != nil {
		return nil, err
	}

	lock := s.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.storage.Ledgers().Load(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user, ErrPersistence)
	}
	if err := l.Buy(fundID, quote.Name, amount, quote.Estimate, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user", user).
		Str("fund", fundID).
		Float64("amount", amount).
		Float64("price", quote.Estimate).
		Msg("Buy applied")

	pos, _ := l.Position(fundID)
	return &pos, nil
}

// Reconcile declares externally acquired holdings, overwriting the
// position from the stated prior principal and profit at the live price.
func (s *Service) Reconcile(ctx context.Context, user, fundID string, amount, priorPrincipal, priorProfit float64) (*ledger.Position, error) {
	if amount < 0 || priorPrincipal < 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	quote, err := s.quoteFor(ctx, fundID)
	if err != nil {
		return nil, err
	}

	lock := s.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.storage.Ledgers().Load(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user, ErrPersistence)
	}
	if err := l.Reconcile(fundID, quote.Name, amount, priorPrincipal, priorProfit, quote.Estimate, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user", user).
		Str("fund", fundID).
		Float64("amount", amount).
		Float64("prior_principal", priorPrincipal).
		Float64("prior_profit", priorProfit).
		Msg("Reconcile applied")

	if pos, ok := l.Position(fundID); ok {
		return &pos, nil
	}
	return nil, nil
}

// SellShares disposes of an explicit share count at the live estimate.
func (s *Service) SellShares(ctx context.Context, user, fundID string, shares float64) (*ledger.Transaction, error) {
	quote, err := s.quoteFor(ctx, fundID)
	if err != nil {
		return nil, err
	}
	return s.sell(ctx, user, fundID, shares, quote.Estimate)
}

// SellAmount converts a currency amount to shares at the live estimate
// and sells that many.
func (s *Service) SellAmount(ctx context.Context, user, fundID string, amount float64) (*ledger.Transaction, error) {
	if amount <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	quote, err := s.quoteFor(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if quote.Estimate <= 0 {
		return nil, fmt.Errorf("fund %s: non-positive estimate: %w", fundID, ErrQuoteUnavailable)
	}
	return s.sell(ctx, user, fundID, amount/quote.Estimate, quote.Estimate)
}

// SellAll disposes of the whole position at the live estimate.
func (s *Service) SellAll(ctx context.Context, user, fundID string) (*ledger.Transaction, error) {
	quote, err := s.quoteFor(ctx, fundID)
	if err != nil {
		return nil, err
	}

	lock := s.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.storage.Ledgers().Load(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user, ErrPersistence)
	}
	pos, ok := l.Position(fundID)
	if !ok {
		return nil, ledger.ErrPositionNotFound
	}
	txn, err := l.Sell(fundID, pos.Shares, quote.Estimate, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user", user).Str("fund", fundID).Float64("shares", txn.Shares).Msg("Sell-all applied")
	return &txn, nil
}

func (s *Service) sell(ctx context.Context, user, fundID string, shares, price float64) (*ledger.Transaction, error) {
	lock := s.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.storage.Ledgers().Load(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user, ErrPersistence)
	}
	txn, err := l.Sell(fundID, shares, price, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user", user).
		Str("fund", fundID).
		Float64("shares", txn.Shares).
		Float64("amount", txn.Amount).
		Msg("Sell applied")
	return &txn, nil
}

// Liquidate clears the whole position at the live estimate and records
// the realized market value.
func (s *Service) Liquidate(ctx context.Context, user, fundID string) (*ledger.Transaction, error) {
	quote, err := s.quoteFor(ctx, fundID)
	if err != nil {
		return nil, err
	}

	lock := s.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.storage.Ledgers().Load(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user, ErrPersistence)
	}
	txn, err := l.Liquidate(fundID, quote.Estimate, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user", user).Str("fund", fundID).Float64("value", txn.Amount).Msg("Liquidate applied")
	return &txn, nil
}

// Snapshot builds the dashboard aggregate. Funds whose quotes fail are
// listed as stale and excluded from every total; the snapshot itself
// never fails on quote errors. When the total is positive it is appended
// to the asset history and saved best-effort.
func (s *Service) Snapshot(ctx context.Context, user string) (*models.PortfolioSnapshot, error) {
	lock := s.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	l, err := s.storage.Ledgers().Load(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user, ErrPersistence)
	}

	snap := &models.PortfolioSnapshot{
		User:      user,
		Time:      s.now(),
		Positions: []models.PositionValue{},
	}

	for _, fundID := range l.FundIDs() {
		pos := l.Holdings[fundID]

		quote, err := s.market.Quote(ctx, fundID)
		if err != nil {
			s.logger.Warn().Err(err).Str("user", user).Str("fund", fundID).Msg("Quote failed, excluding from totals")
			snap.Stale = append(snap.Stale, fundID)
			continue
		}

		marketValue := pos.Shares * quote.Estimate
		// Today's P&L comes from the feed-supplied percent change, not
		// from the estimate/prior-NAV spread.
		todayPnL := marketValue * (quote.ChangePct / 100)
		lifetimePnL := marketValue - pos.CostBasis
		lifetimePct := 0.0
		if pos.CostBasis > 0 {
			lifetimePct = lifetimePnL / pos.CostBasis * 100
		}

		snap.Positions = append(snap.Positions, models.PositionValue{
			FundID:         fundID,
			DisplayName:    pos.DisplayName,
			Shares:         pos.Shares,
			CostBasis:      pos.CostBasis,
			Estimate:       quote.Estimate,
			PriorNav:       quote.PriorNav,
			ChangePct:      quote.ChangePct,
			MarketValue:    marketValue,
			TodayPnL:       todayPnL,
			LifetimePnL:    lifetimePnL,
			LifetimePnLPct: lifetimePct,
			QuoteTime:      quote.QuoteTime,
		})

		snap.TotalMarketValue += marketValue
		snap.TotalCost += pos.CostBasis
		snap.TodayPnL += todayPnL
		snap.TotalPnL += lifetimePnL
	}

	if snap.TotalCost > 0 {
		snap.TotalPnLPct = snap.TotalPnL / snap.TotalCost * 100
	}

	if snap.TotalMarketValue > 0 {
		l.RecordAssetTotal(s.now(), snap.TotalMarketValue)
		if err := s.storage.Ledgers().Save(ctx, l); err != nil {
			// best-effort append; the snapshot itself is still valid
			s.logger.Warn().Err(err).Str("user", user).Msg("Asset history save failed")
		}
	}

	return snap, nil
}

// Transactions returns the audit trail newest-first, optionally filtered
// by a fund-code substring.
func (s *Service) Transactions(ctx context.Context, user, fundFilter string) ([]ledger.Transaction, error) {
	l, err := s.storage.Ledgers().Load(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user, ErrPersistence)
	}

	if fundFilter == "" {
		return l.Transactions, nil
	}

	filtered := make([]ledger.Transaction, 0, len(l.Transactions))
	for _, txn := range l.Transactions {
		if strings.Contains(txn.FundID, fundFilter) {
			filtered = append(filtered, txn)
		}
	}
	return filtered, nil
}

// AssetHistory returns the recorded daily totals sorted ascending.
func (s *Service) AssetHistory(ctx context.Context, user string) ([]ledger.AssetPoint, error) {
	l, err := s.storage.Ledgers().Load(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user, ErrPersistence)
	}
	return l.AssetSeries(), nil
}

// RenderAssetChart renders the asset-history curve as a PNG, persists a
// copy to the charts area, and returns the bytes.
func (s *Service) RenderAssetChart(ctx context.Context, user string) ([]byte, error) {
	series, err := s.AssetHistory(ctx, user)
	if err != nil {
		return nil, err
	}

	png, err := renderAssetChart(series)
	if err != nil {
		return nil, err
	}

	if err := s.storage.WriteRaw("charts", user+".png", png); err != nil {
		s.logger.Warn().Err(err).Str("user", user).Msg("Chart write failed")
	}

	return png, nil
}

// Purge deletes the user's ledger document and its backups.
func (s *Service) Purge(ctx context.Context, user string) error {
	lock := s.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	if err := s.storage.Ledgers().Delete(ctx, user); err != nil {
		return fmt.Errorf("user %s: %w", user, ErrPersistence)
	}
	s.logger.Info().Str("user", user).Msg("Ledger purged")
	return nil
}

// Ensure Service implements PortfolioService
var _ interfaces.PortfolioService = (*Service)(nil)
