package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ldsbg/fundkeeper/internal/app"
	"github.com/ldsbg/fundkeeper/internal/common"
	"github.com/ldsbg/fundkeeper/internal/models"
	"github.com/ldsbg/fundkeeper/internal/services/portfolio"
	"github.com/ldsbg/fundkeeper/internal/storage"
)

// mockMarketService implements interfaces.MarketService for testing.
type mockMarketService struct {
	quote   func(ctx context.Context, fundID string) (*models.FundQuote, error)
	history func(ctx context.Context, fundID string, days int) ([]models.NavPoint, error)
}

func (m *mockMarketService) Quote(ctx context.Context, fundID string) (*models.FundQuote, error) {
	if m.quote != nil {
		return m.quote(ctx, fundID)
	}
	return nil, errors.New("no quote configured")
}

func (m *mockMarketService) History(ctx context.Context, fundID string, days int) ([]models.NavPoint, error) {
	if m.history != nil {
		return m.history(ctx, fundID, days)
	}
	return nil, errors.New("no history configured")
}

func fixedQuote(fundID string, estimate float64) *models.FundQuote {
	return &models.FundQuote{
		FundID:    fundID,
		Name:      "Test Fund " + fundID,
		NavDate:   "2026-08-28",
		PriorNav:  estimate - 0.1,
		Estimate:  estimate,
		ChangePct: 1.25,
		QuoteTime: "2026-08-31 14:30",
		Retrieved: time.Now(),
	}
}

func newTestHandler(t *testing.T, market *mockMarketService) http.Handler {
	t.Helper()

	logger := common.NewSilentLogger()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Path = t.TempDir()
	cfg.Storage.Versions = 2

	sm, err := storage.NewStorageManager(logger, &cfg.Storage)
	if err != nil {
		t.Fatalf("failed to create storage manager: %v", err)
	}

	a := &app.App{
		Config:      cfg,
		Logger:      logger,
		Storage:     sm,
		Market:      market,
		Portfolio:   portfolio.NewService(sm, market, logger),
		StartupTime: time.Now(),
	}
	return NewServer(a).Handler()
}

func workingMarket() *mockMarketService {
	return &mockMarketService{
		quote: func(ctx context.Context, fundID string) (*models.FundQuote, error) {
			return fixedQuote(fundID, 2.0), nil
		},
		history: func(ctx context.Context, fundID string, days int) ([]models.NavPoint, error) {
			return []models.NavPoint{
				{Date: time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), Nav: 1.9},
				{Date: time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), Nav: 2.0},
			}, nil
		},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	decodeBody(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestHandleVersion(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodGet, "/api/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["version"] == "" {
		t.Error("expected non-empty version")
	}
}

func TestBuyThenPortfolio(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{FundID: "161725", Amount: 1000})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var buyResp struct {
		User     string `json:"user"`
		Position struct {
			FundID    string  `json:"fund_id"`
			Shares    float64 `json:"shares"`
			CostBasis float64 `json:"cost_basis"`
		} `json:"position"`
	}
	decodeBody(t, rec, &buyResp)
	if buyResp.Position.Shares != 500 {
		t.Errorf("expected 500 shares, got %f", buyResp.Position.Shares)
	}
	if buyResp.Position.CostBasis != 1000 {
		t.Errorf("expected cost basis 1000, got %f", buyResp.Position.CostBasis)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/users/alice/portfolio", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var snap models.PortfolioSnapshot
	decodeBody(t, rec, &snap)
	if len(snap.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(snap.Positions))
	}
	if snap.TotalMarketValue != 1000 {
		t.Errorf("expected total market value 1000, got %f", snap.TotalMarketValue)
	}
}

func TestBuyNegativeAmount(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{FundID: "161725", Amount: -50})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != "invalid_quantity" {
		t.Errorf("expected code invalid_quantity, got %q", resp.Code)
	}
}

func TestBuyMissingFundID(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{Amount: 100})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestBuyQuoteUnavailable(t *testing.T) {
	market := &mockMarketService{
		quote: func(ctx context.Context, fundID string) (*models.FundQuote, error) {
			return nil, errors.New("upstream down")
		},
	}
	h := newTestHandler(t, market)

	rec := doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{FundID: "161725", Amount: 1000})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}

	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != "quote_unavailable" {
		t.Errorf("expected code quote_unavailable, got %q", resp.Code)
	}
}

func TestReconcileBuy(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{FundID: "161725", Amount: 0, Reconcile: true, PriorPrincipal: 800, PriorProfit: 200})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Position struct {
			Shares    float64 `json:"shares"`
			CostBasis float64 `json:"cost_basis"`
		} `json:"position"`
	}
	decodeBody(t, rec, &resp)
	// (800 + 200) / 2.0 estimate
	if resp.Position.Shares != 500 {
		t.Errorf("expected 500 shares, got %f", resp.Position.Shares)
	}
	if resp.Position.CostBasis != 800 {
		t.Errorf("expected cost basis 800, got %f", resp.Position.CostBasis)
	}
}

func TestSellShares(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{FundID: "161725", Amount: 1000})

	rec := doJSON(t, h, http.MethodPost, "/api/users/alice/sell",
		SellRequest{FundID: "161725", Mode: "shares", Shares: 250})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Transaction struct {
			Kind   string  `json:"kind"`
			Shares float64 `json:"shares"`
			Amount float64 `json:"amount"`
		} `json:"transaction"`
	}
	decodeBody(t, rec, &resp)
	if resp.Transaction.Shares != 250 {
		t.Errorf("expected 250 shares sold, got %f", resp.Transaction.Shares)
	}
	if resp.Transaction.Amount != 500 {
		t.Errorf("expected amount 500, got %f", resp.Transaction.Amount)
	}
}

func TestSellUnknownFund(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodPost, "/api/users/alice/sell",
		SellRequest{FundID: "999999", Mode: "all"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != "position_not_found" {
		t.Errorf("expected code position_not_found, got %q", resp.Code)
	}
}

func TestSellInvalidMode(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodPost, "/api/users/alice/sell",
		SellRequest{FundID: "161725", Mode: "half"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestLiquidate(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{FundID: "161725", Amount: 1000})

	rec := doJSON(t, h, http.MethodPost, "/api/users/alice/holdings/161725/liquidate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Transaction struct {
			Kind   string  `json:"kind"`
			Amount float64 `json:"amount"`
		} `json:"transaction"`
	}
	decodeBody(t, rec, &resp)
	if resp.Transaction.Amount != 1000 {
		t.Errorf("expected liquidation value 1000, got %f", resp.Transaction.Amount)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/users/alice/portfolio", nil)
	var snap models.PortfolioSnapshot
	decodeBody(t, rec, &snap)
	if len(snap.Positions) != 0 {
		t.Errorf("expected empty holdings after liquidation, got %d", len(snap.Positions))
	}
}

func TestTransactionsFilter(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{FundID: "161725", Amount: 1000})
	doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{FundID: "005827", Amount: 500})

	rec := doJSON(t, h, http.MethodGet, "/api/users/alice/transactions?fund=1617", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Transactions []struct {
			FundID string `json:"fund_id"`
		} `json:"transactions"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Transactions) != 1 {
		t.Fatalf("expected 1 filtered transaction, got %d", len(resp.Transactions))
	}
	if resp.Transactions[0].FundID != "161725" {
		t.Errorf("expected fund 161725, got %q", resp.Transactions[0].FundID)
	}
}

func TestPurge(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{FundID: "161725", Amount: 1000})

	rec := doJSON(t, h, http.MethodDelete, "/api/users/alice/data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/users/alice/portfolio", nil)
	var snap models.PortfolioSnapshot
	decodeBody(t, rec, &snap)
	if len(snap.Positions) != 0 {
		t.Errorf("expected no positions after purge, got %d", len(snap.Positions))
	}
}

func TestUserList(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	doJSON(t, h, http.MethodPost, "/api/users/alice/buy",
		BuyRequest{FundID: "161725", Amount: 1000})

	rec := doJSON(t, h, http.MethodGet, "/api/users", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Users []string `json:"users"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Users) != 1 || resp.Users[0] != "alice" {
		t.Errorf("expected users [alice], got %v", resp.Users)
	}
}

func TestFundQuote(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodGet, "/api/funds/161725/quote", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var quote models.FundQuote
	decodeBody(t, rec, &quote)
	if quote.FundID != "161725" {
		t.Errorf("expected fund 161725, got %q", quote.FundID)
	}
	if quote.Estimate != 2.0 {
		t.Errorf("expected estimate 2.0, got %f", quote.Estimate)
	}
}

func TestFundQuoteUnavailable(t *testing.T) {
	market := &mockMarketService{
		quote: func(ctx context.Context, fundID string) (*models.FundQuote, error) {
			return nil, errors.New("no such fund")
		},
	}
	h := newTestHandler(t, market)

	rec := doJSON(t, h, http.MethodGet, "/api/funds/000000/quote", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	if resp.Code != "quote_unavailable" {
		t.Errorf("expected code quote_unavailable, got %q", resp.Code)
	}
}

func TestFundHistory(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodGet, "/api/funds/161725/history?days=7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		FundID string            `json:"fund_id"`
		Days   int               `json:"days"`
		Points []models.NavPoint `json:"points"`
	}
	decodeBody(t, rec, &resp)
	if resp.Days != 7 {
		t.Errorf("expected days 7, got %d", resp.Days)
	}
	if len(resp.Points) != 2 {
		t.Errorf("expected 2 points, got %d", len(resp.Points))
	}
}

func TestFundHistoryInvalidDays(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	for _, days := range []string{"abc", "-5", "0"} {
		rec := doJSON(t, h, http.MethodGet, "/api/funds/161725/history?days="+days, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("days=%s: expected status 400, got %d", days, rec.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodGet, "/api/users/alice/buy", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	rec := doJSON(t, h, http.MethodGet, "/api/users/alice/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(t, workingMarket())

	req := httptest.NewRequest(http.MethodOptions, "/api/users/alice/buy", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS allow-origin header")
	}
}
