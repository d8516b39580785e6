package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ldsbg/fundkeeper/internal/ledger"
	"github.com/ldsbg/fundkeeper/internal/services/portfolio"
)

// writeServiceError maps service errors onto the API error taxonomy.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_quantity")
	case errors.Is(err, ledger.ErrPositionNotFound):
		WriteErrorWithCode(w, http.StatusNotFound, err.Error(), "position_not_found")
	case errors.Is(err, portfolio.ErrQuoteUnavailable):
		WriteErrorWithCode(w, http.StatusBadGateway, err.Error(), "quote_unavailable")
	case errors.Is(err, portfolio.ErrPersistence):
		WriteErrorWithCode(w, http.StatusInternalServerError, err.Error(), "persistence_failure")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleFundQuote handles GET /api/funds/{code}/quote.
func (s *Server) handleFundQuote(w http.ResponseWriter, r *http.Request, code string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	quote, err := s.app.Market.Quote(r.Context(), code)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, err.Error(), "quote_unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, quote)
}

// handleFundHistory handles GET /api/funds/{code}/history?days=30.
func (s *Server) handleFundHistory(w http.ResponseWriter, r *http.Request, code string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed <= 0 {
			WriteError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	points, err := s.app.Market.History(r.Context(), code, days)
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, err.Error(), "history_unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"fund_id": code,
		"days":    days,
		"points":  points,
	})
}

// handleUserList handles GET /api/users.
func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	users, err := s.app.Storage.Ledgers().ListUsers(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if users == nil {
		users = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// handlePortfolio handles GET /api/users/{user}/portfolio.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request, user string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	snap, err := s.app.Portfolio.Snapshot(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// handlePortfolioHistory handles GET /api/users/{user}/portfolio/history.
func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request, user string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	series, err := s.app.Portfolio.AssetHistory(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":   user,
		"points": series,
	})
}

// handlePortfolioChart handles GET /api/users/{user}/portfolio/chart.png.
func (s *Server) handlePortfolioChart(w http.ResponseWriter, r *http.Request, user string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	png, err := s.app.Portfolio.RenderAssetChart(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleTransactions handles GET /api/users/{user}/transactions?fund=....
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, user string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	txns, err := s.app.Portfolio.Transactions(r.Context(), user, r.URL.Query().Get("fund"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if txns == nil {
		txns = []ledger.Transaction{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":         user,
		"transactions": txns,
	})
}

// BuyRequest is the payload for POST /api/users/{user}/buy.
// When Reconcile is set, prior principal and profit declare holdings
// acquired outside the ledger and the position is rebuilt from them.
type BuyRequest struct {
	FundID         string  `json:"fund_id"`
	Amount         float64 `json:"amount"`
	Reconcile      bool    `json:"reconcile,omitempty"`
	PriorPrincipal float64 `json:"prior_principal,omitempty"`
	PriorProfit    float64 `json:"prior_profit,omitempty"`
}

// handleBuy handles POST /api/users/{user}/buy.
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, user string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req BuyRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.FundID == "" {
		WriteError(w, http.StatusBadRequest, "fund_id is required")
		return
	}

	var pos *ledger.Position
	var err error
	if req.Reconcile {
		pos, err = s.app.Portfolio.Reconcile(r.Context(), user, req.FundID, req.Amount, req.PriorPrincipal, req.PriorProfit)
	} else {
		pos, err = s.app.Portfolio.Buy(r.Context(), user, req.FundID, req.Amount)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":     user,
		"position": pos,
	})
}

// SellRequest is the payload for POST /api/users/{user}/sell.
// Mode selects how the disposal size is expressed: a currency amount,
// an explicit share count, or the whole position.
type SellRequest struct {
	FundID string  `json:"fund_id"`
	Mode   string  `json:"mode"`
	Amount float64 `json:"amount,omitempty"`
	Shares float64 `json:"shares,omitempty"`
}

// handleSell handles POST /api/users/{user}/sell.
func (s *Server) handleSell(w http.ResponseWriter, r *http.Request, user string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req SellRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.FundID == "" {
		WriteError(w, http.StatusBadRequest, "fund_id is required")
		return
	}

	var txn *ledger.Transaction
	var err error
	switch req.Mode {
	case "amount":
		txn, err = s.app.Portfolio.SellAmount(r.Context(), user, req.FundID, req.Amount)
	case "shares":
		txn, err = s.app.Portfolio.SellShares(r.Context(), user, req.FundID, req.Shares)
	case "all":
		txn, err = s.app.Portfolio.SellAll(r.Context(), user, req.FundID)
	default:
		WriteError(w, http.StatusBadRequest, "mode must be one of: amount, shares, all")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":        user,
		"transaction": txn,
	})
}

// handleLiquidate handles POST /api/users/{user}/holdings/{fund}/liquidate.
func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request, user, fund string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	txn, err := s.app.Portfolio.Liquidate(r.Context(), user, fund)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":        user,
		"transaction": txn,
	})
}

// handlePurge handles DELETE /api/users/{user}/data.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request, user string) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	if err := s.app.Portfolio.Purge(r.Context(), user); err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "purged", "user": user})
}
