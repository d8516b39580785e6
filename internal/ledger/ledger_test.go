package ledger

import (
	"errors"
	"math"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestBuyCreatesPosition(t *testing.T) {
	l := New("alice")

	if err := l.Buy("110022", "Consumer Index", 1000, 2.0, testNow); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	pos, ok := l.Position("110022")
	if !ok {
		t.Fatal("expected position to exist")
	}
	if !approxEqual(pos.Shares, 500) {
		t.Errorf("shares = %f, want 500", pos.Shares)
	}
	if !approxEqual(pos.CostBasis, 1000) {
		t.Errorf("cost basis = %f, want 1000", pos.CostBasis)
	}
	if pos.DisplayName != "Consumer Index" {
		t.Errorf("display name = %q", pos.DisplayName)
	}

	if len(l.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(l.Transactions))
	}
	txn := l.Transactions[0]
	if txn.Kind != KindBuy || !approxEqual(txn.Amount, 1000) || !approxEqual(txn.Shares, 500) {
		t.Errorf("unexpected transaction: %+v", txn)
	}
	if txn.ID == "" {
		t.Error("transaction ID not assigned")
	}
}

func TestBuyAccumulates(t *testing.T) {
	l := New("alice")
	l.Buy("110022", "Consumer Index", 1000, 2.0, testNow)
	l.Buy("110022", "ignored on repeat", 600, 3.0, testNow)

	pos, _ := l.Position("110022")
	if !approxEqual(pos.Shares, 700) {
		t.Errorf("shares = %f, want 700", pos.Shares)
	}
	if !approxEqual(pos.CostBasis, 1600) {
		t.Errorf("cost basis = %f, want 1600", pos.CostBasis)
	}
	if pos.DisplayName != "Consumer Index" {
		t.Errorf("display name changed on repeat buy: %q", pos.DisplayName)
	}
}

func TestBuyZeroPriceAddsCostOnly(t *testing.T) {
	l := New("alice")
	if err := l.Buy("110022", "Consumer Index", 100, 0, testNow); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	pos, ok := l.Position("110022")
	if !ok {
		t.Fatal("expected position")
	}
	if !approxEqual(pos.Shares, 0) || !approxEqual(pos.CostBasis, 100) {
		t.Errorf("got shares=%f cost=%f, want 0/100", pos.Shares, pos.CostBasis)
	}
	if len(l.Transactions) != 1 {
		t.Errorf("expected buy transaction, got %d", len(l.Transactions))
	}
}

func TestBuyNegativeAmountRejected(t *testing.T) {
	l := New("alice")
	err := l.Buy("110022", "Consumer Index", -50, 2.0, testNow)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("err = %v, want ErrInvalidQuantity", err)
	}
	if len(l.Holdings) != 0 || len(l.Transactions) != 0 {
		t.Error("ledger mutated by rejected buy")
	}
}

func TestBuyZeroAmountNoPositionNoTransaction(t *testing.T) {
	l := New("alice")
	if err := l.Buy("110022", "Consumer Index", 0, 2.0, testNow); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if _, ok := l.Position("110022"); ok {
		t.Error("zero-amount buy created a position")
	}
	if len(l.Transactions) != 0 {
		t.Error("zero-amount buy recorded a transaction")
	}
}

func TestSellProportionalCostReduction(t *testing.T) {
	l := New("alice")
	l.Buy("110022", "Consumer Index", 1000, 2.0, testNow)

	txn, err := l.Sell("110022", 250, 2.5, testNow)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}

	pos, ok := l.Position("110022")
	if !ok {
		t.Fatal("position should survive partial sell")
	}
	if !approxEqual(pos.Shares, 250) {
		t.Errorf("shares = %f, want 250", pos.Shares)
	}
	if !approxEqual(pos.CostBasis, 500) {
		t.Errorf("cost basis = %f, want 500", pos.CostBasis)
	}
	if txn.Kind != KindSell || !approxEqual(txn.Amount, 625) {
		t.Errorf("sell transaction = %+v, want amount 625", txn)
	}
	if !approxEqual(txn.Shares, 250) {
		t.Errorf("sell transaction shares = %f, want 250", txn.Shares)
	}
}

func TestSellAllRemovesPosition(t *testing.T) {
	l := New("alice")
	l.Buy("110022", "Consumer Index", 1000, 2.0, testNow)

	if _, err := l.Sell("110022", 500, 2.5, testNow); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if _, ok := l.Position("110022"); ok {
		t.Error("position should be removed after selling everything")
	}
}

func TestSellAllToleratesFloatResidue(t *testing.T) {
	l := New("alice")
	l.Buy("161725", "Liquor Index", 1000, 3.0, testNow)

	pos, _ := l.Position("161725")
	// ask for a hair more than held, inside the tolerance
	if _, err := l.Sell("161725", pos.Shares+0.005, 3.1, testNow); err != nil {
		t.Fatalf("Sell within tolerance: %v", err)
	}
	if _, ok := l.Position("161725"); ok {
		t.Error("position should be removed")
	}
}

func TestSellRejectsInvalidQuantities(t *testing.T) {
	l := New("alice")
	l.Buy("110022", "Consumer Index", 1000, 2.0, testNow)

	cases := []struct {
		name   string
		shares float64
	}{
		{"zero", 0},
		{"negative", -10},
		{"oversized", 501},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Sell("110022", tc.shares, 2.5, testNow)
			if !errors.Is(err, ErrInvalidQuantity) {
				t.Fatalf("err = %v, want ErrInvalidQuantity", err)
			}
			pos, _ := l.Position("110022")
			if !approxEqual(pos.Shares, 500) || !approxEqual(pos.CostBasis, 1000) {
				t.Error("rejected sell mutated the position")
			}
		})
	}
}

func TestSellUnknownFund(t *testing.T) {
	l := New("alice")
	_, err := l.Sell("999999", 10, 1.0, testNow)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("err = %v, want ErrPositionNotFound", err)
	}
}

func TestReconcileOverwritesPosition(t *testing.T) {
	l := New("alice")
	l.Buy("110022", "Consumer Index", 1000, 2.0, testNow)
	before := len(l.Transactions)

	err := l.Reconcile("110022", "Consumer Index", 0, 100, 20, 1.2, testNow)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	pos, _ := l.Position("110022")
	if !approxEqual(pos.Shares, 100) {
		t.Errorf("shares = %f, want 100", pos.Shares)
	}
	if !approxEqual(pos.CostBasis, 100) {
		t.Errorf("cost basis = %f, want 100", pos.CostBasis)
	}
	if len(l.Transactions) != before {
		t.Error("reconcile with no new money recorded a transaction")
	}
}

func TestReconcileWithNewMoney(t *testing.T) {
	l := New("alice")

	err := l.Reconcile("110022", "Consumer Index", 120, 100, 20, 1.2, testNow)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	pos, _ := l.Position("110022")
	if !approxEqual(pos.Shares, 200) {
		t.Errorf("shares = %f, want 200", pos.Shares)
	}
	if !approxEqual(pos.CostBasis, 220) {
		t.Errorf("cost basis = %f, want 220", pos.CostBasis)
	}
	if len(l.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(l.Transactions))
	}
	if !approxEqual(l.Transactions[0].Amount, 120) {
		t.Errorf("transaction amount = %f, want 120", l.Transactions[0].Amount)
	}
}

func TestReconcileToNothingRemovesPosition(t *testing.T) {
	l := New("alice")
	l.Buy("110022", "Consumer Index", 1000, 2.0, testNow)

	if err := l.Reconcile("110022", "Consumer Index", 0, 0, 0, 1.2, testNow); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, ok := l.Position("110022"); ok {
		t.Error("reconcile to zero should remove the position")
	}
}

func TestLiquidateRecordsValueAndShares(t *testing.T) {
	l := New("alice")
	l.Buy("110022", "Consumer Index", 1000, 2.0, testNow)

	txn, err := l.Liquidate("110022", 2.4, testNow)
	if err != nil {
		t.Fatalf("Liquidate: %v", err)
	}
	if _, ok := l.Position("110022"); ok {
		t.Error("position should be removed")
	}
	if txn.Kind != KindLiquidate {
		t.Errorf("kind = %s, want liquidate", txn.Kind)
	}
	if !approxEqual(txn.Amount, 1200) {
		t.Errorf("amount = %f, want 1200", txn.Amount)
	}
	if !approxEqual(txn.Shares, 500) {
		t.Errorf("shares = %f, want 500", txn.Shares)
	}
}

func TestLiquidateUnknownFund(t *testing.T) {
	l := New("alice")
	_, err := l.Liquidate("999999", 1.0, testNow)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("err = %v, want ErrPositionNotFound", err)
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	l := New("alice")
	l.Buy("110022", "Consumer Index", 100, 1.0, testNow)
	l.Buy("161725", "Liquor Index", 200, 1.0, testNow.Add(time.Hour))

	if len(l.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(l.Transactions))
	}
	if l.Transactions[0].FundID != "161725" {
		t.Errorf("newest transaction should come first, got %s", l.Transactions[0].FundID)
	}
}

func TestRecordAssetTotalLastWriteWins(t *testing.T) {
	l := New("alice")
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	l.RecordAssetTotal(day, 1000)
	l.RecordAssetTotal(day.Add(4*time.Hour), 1200)

	if len(l.AssetHistory) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(l.AssetHistory))
	}
	if !approxEqual(l.AssetHistory["2026-03-02"], 1200) {
		t.Errorf("total = %f, want 1200", l.AssetHistory["2026-03-02"])
	}
}

func TestRecordAssetTotalIgnoresNonPositive(t *testing.T) {
	l := New("alice")
	l.RecordAssetTotal(testNow, 0)
	l.RecordAssetTotal(testNow, -50)
	if len(l.AssetHistory) != 0 {
		t.Error("non-positive totals should be ignored")
	}
}

func TestAssetSeriesSortedAscending(t *testing.T) {
	l := New("alice")
	l.AssetHistory["2026-03-03"] = 1100
	l.AssetHistory["2026-03-01"] = 900
	l.AssetHistory["2026-03-02"] = 1000
	l.AssetHistory["garbage"] = 1

	series := l.AssetSeries()
	if len(series) != 3 {
		t.Fatalf("expected 3 points, got %d", len(series))
	}
	for i := 1; i < len(series); i++ {
		if !series[i].Date.After(series[i-1].Date) {
			t.Errorf("series not ascending at %d", i)
		}
	}
	if !approxEqual(series[0].Total, 900) || !approxEqual(series[2].Total, 1100) {
		t.Error("series values out of order")
	}
}

func TestNormalizeInitializesNilCollections(t *testing.T) {
	l := &Ledger{User: "alice"}
	l.Normalize()
	if l.Holdings == nil || l.Transactions == nil || l.AssetHistory == nil {
		t.Fatal("Normalize left nil collections")
	}
	if err := l.Buy("110022", "Consumer Index", 10, 1.0, testNow); err != nil {
		t.Fatalf("Buy after Normalize: %v", err)
	}
}
