package models

import "time"

// PositionValue is a holding enriched with live quote data.
type PositionValue struct {
	FundID         string  `json:"fund_id"`
	DisplayName    string  `json:"display_name"`
	Shares         float64 `json:"shares"`
	CostBasis      float64 `json:"cost_basis"`
	Estimate       float64 `json:"estimate"`
	PriorNav       float64 `json:"prior_nav"`
	ChangePct      float64 `json:"change_pct"`
	MarketValue    float64 `json:"market_value"`
	TodayPnL       float64 `json:"today_pnl"`
	LifetimePnL    float64 `json:"lifetime_pnl"`
	LifetimePnLPct float64 `json:"lifetime_pnl_pct"`
	QuoteTime      string  `json:"quote_time"`
}

// PortfolioSnapshot is the dashboard aggregate for one user.
// Stale lists funds whose quotes could not be fetched; those positions are
// excluded from every total rather than failing the snapshot.
type PortfolioSnapshot struct {
	User             string          `json:"user"`
	Time             time.Time       `json:"time"`
	Positions        []PositionValue `json:"positions"`
	Stale            []string        `json:"stale,omitempty"`
	TotalMarketValue float64         `json:"total_market_value"`
	TotalCost        float64         `json:"total_cost"`
	TodayPnL         float64         `json:"today_pnl"`
	TotalPnL         float64         `json:"total_pnl"`
	TotalPnLPct      float64         `json:"total_pnl_pct"`
}
