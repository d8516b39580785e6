// Package ledger implements the holdings and cost-basis engine.
//
// A Ledger is a plain document: it carries no I/O and no clock of its own.
// Callers supply prices from live quotes and timestamps from their own
// clock, which keeps every operation deterministic and testable.
package ledger

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Epsilon is the share-count tolerance below which a position is
// considered empty and removed.
const Epsilon = 0.01

// DateLayout is the calendar-date key format for asset history.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidQuantity rejects non-positive or oversized quantities.
	// The ledger is left unchanged.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrPositionNotFound indicates the fund is not held.
	ErrPositionNotFound = errors.New("position not found")
)

// Kind classifies a transaction.
type Kind string

const (
	KindBuy       Kind = "buy"
	KindSell      Kind = "sell"
	KindLiquidate Kind = "liquidate"
)

// Position is the current holding in a single fund.
type Position struct {
	FundID      string  `json:"fund_id"`
	DisplayName string  `json:"display_name"`
	Shares      float64 `json:"shares"`
	CostBasis   float64 `json:"cost_basis"`
}

// Transaction is one entry in the append-only audit trail. Transactions
// record what happened; they are never replayed to rebuild holdings.
type Transaction struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	Kind        Kind      `json:"kind"`
	FundID      string    `json:"fund_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Amount      float64   `json:"amount"`
	Shares      float64   `json:"shares,omitempty"`
}

// AssetPoint is one day's recorded total asset value.
type AssetPoint struct {
	Date  time.Time `json:"date"`
	Total float64   `json:"total"`
}

// Ledger is the whole per-user document: holdings keyed by fund code, the
// transaction log newest-first, and a calendar-dated asset-value history.
type Ledger struct {
	User         string               `json:"user"`
	Holdings     map[string]*Position `json:"holdings"`
	Transactions []Transaction        `json:"transactions"`
	AssetHistory map[string]float64   `json:"asset_history"`
	CreatedAt    time.Time            `json:"created_at,omitzero"`
	UpdatedAt    time.Time            `json:"updated_at,omitzero"`
}

// New returns an empty ledger for the given user.
func New(user string) *Ledger {
	return &Ledger{
		User:         user,
		Holdings:     make(map[string]*Position),
		Transactions: []Transaction{},
		AssetHistory: make(map[string]float64),
	}
}

// Normalize initializes nil collections after a JSON load.
func (l *Ledger) Normalize() {
	if l.Holdings == nil {
		l.Holdings = make(map[string]*Position)
	}
	if l.Transactions == nil {
		l.Transactions = []Transaction{}
	}
	if l.AssetHistory == nil {
		l.AssetHistory = make(map[string]float64)
	}
}

// Position returns a copy of the holding for the given fund.
func (l *Ledger) Position(fundID string) (Position, bool) {
	pos, ok := l.Holdings[fundID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// FundIDs returns the held fund codes in sorted order.
func (l *Ledger) FundIDs() []string {
	ids := make([]string, 0, len(l.Holdings))
	for id := range l.Holdings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Buy adds money to a position at the given price. Shares bought are
// amount/price; a non-positive price contributes cost but no shares
// (money committed before a valuation exists). A buy transaction is
// recorded only when amount is positive.
func (l *Ledger) Buy(fundID, name string, amount, price float64, now time.Time) error {
	if amount < 0 {
		return ErrInvalidQuantity
	}

	shares := 0.0
	if price > 0 {
		shares = amount / price
	}

	pos, ok := l.Holdings[fundID]
	if !ok {
		if amount <= 0 {
			return nil
		}
		pos = &Position{FundID: fundID, DisplayName: name}
		l.Holdings[fundID] = pos
	}
	pos.Shares += shares
	pos.CostBasis += amount

	if amount > 0 {
		l.record(Transaction{
			Kind:        KindBuy,
			FundID:      fundID,
			DisplayName: pos.DisplayName,
			Amount:      amount,
			Shares:      shares,
		}, now)
	}
	l.touch(now)
	return nil
}

// Reconcile declares externally acquired holdings: the position is
// overwritten outright from the stated prior principal and profit valued
// at the current price, plus any new money added in the same step. A buy
// transaction is recorded only for the new money.
func (l *Ledger) Reconcile(fundID, name string, amount, priorPrincipal, priorProfit, price float64, now time.Time) error {
	if amount < 0 || priorPrincipal < 0 {
		return ErrInvalidQuantity
	}

	baseShares := 0.0
	newShares := 0.0
	if price > 0 {
		baseShares = (priorPrincipal + priorProfit) / price
		newShares = amount / price
	}

	total := baseShares + newShares
	if total < Epsilon {
		delete(l.Holdings, fundID)
	} else {
		l.Holdings[fundID] = &Position{
			FundID:      fundID,
			DisplayName: name,
			Shares:      total,
			CostBasis:   priorPrincipal + amount,
		}
	}

	if amount > 0 {
		l.record(Transaction{
			Kind:        KindBuy,
			FundID:      fundID,
			DisplayName: name,
			Amount:      amount,
			Shares:      newShares,
		}, now)
	}
	l.touch(now)
	return nil
}

// Sell disposes of the given share count at the given price. Cost basis
// is reduced proportionally (average-cost), so the remaining position
// keeps its per-share cost. The position is removed once its share count
// drops below Epsilon. Returns the recorded sell transaction.
func (l *Ledger) Sell(fundID string, shares, price float64, now time.Time) (Transaction, error) {
	pos, ok := l.Holdings[fundID]
	if !ok {
		return Transaction{}, ErrPositionNotFound
	}
	if shares <= 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	if shares > pos.Shares+Epsilon {
		return Transaction{}, ErrInvalidQuantity
	}
	if shares > pos.Shares {
		// float residue on sell-all
		shares = pos.Shares
	}

	costReduce := 0.0
	if pos.Shares > 0 {
		costReduce = pos.CostBasis * (shares / pos.Shares)
	}
	pos.Shares -= shares
	pos.CostBasis -= costReduce
	if pos.Shares < Epsilon {
		delete(l.Holdings, fundID)
	}

	txn := Transaction{
		Kind:        KindSell,
		FundID:      fundID,
		DisplayName: pos.DisplayName,
		Amount:      shares * price,
		Shares:      shares,
	}
	l.record(txn, now)
	l.touch(now)
	return l.Transactions[0], nil
}

// Liquidate clears the whole position at the given price and records a
// liquidate transaction carrying the realized market value and the share
// count that was cleared.
func (l *Ledger) Liquidate(fundID string, price float64, now time.Time) (Transaction, error) {
	pos, ok := l.Holdings[fundID]
	if !ok {
		return Transaction{}, ErrPositionNotFound
	}

	txn := Transaction{
		Kind:        KindLiquidate,
		FundID:      fundID,
		DisplayName: pos.DisplayName,
		Amount:      pos.Shares * price,
		Shares:      pos.Shares,
	}
	delete(l.Holdings, fundID)
	l.record(txn, now)
	l.touch(now)
	return l.Transactions[0], nil
}

// RecordAssetTotal stores the day's total asset value. The last write
// for a calendar date wins; non-positive totals are ignored so partial
// quote outages never zero out the curve.
func (l *Ledger) RecordAssetTotal(date time.Time, total float64) {
	if total <= 0 {
		return
	}
	l.AssetHistory[date.Format(DateLayout)] = total
	l.touch(date)
}

// AssetSeries returns the asset history sorted by date ascending.
// Entries with unparsable date keys are skipped.
func (l *Ledger) AssetSeries() []AssetPoint {
	points := make([]AssetPoint, 0, len(l.AssetHistory))
	for key, total := range l.AssetHistory {
		d, err := time.Parse(DateLayout, key)
		if err != nil {
			continue
		}
		points = append(points, AssetPoint{Date: d, Total: total})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}

func (l *Ledger) record(txn Transaction, now time.Time) {
	txn.ID = uuid.New().String()
	txn.Time = now
	l.Transactions = append([]Transaction{txn}, l.Transactions...)
}

func (l *Ledger) touch(now time.Time) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
}
