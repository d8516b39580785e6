// Package models defines data structures shared across FundKeeper services
package models

import "time"

// FundQuote is a near-real-time valuation for a single fund.
// NavDate and QuoteTime are kept as the upstream strings ("2006-01-02" and
// "2006-01-02 15:04") since the feed reports exchange-local times without
// a zone.
type FundQuote struct {
	FundID    string    `json:"fund_id"`
	Name      string    `json:"name"`
	NavDate   string    `json:"nav_date"`
	PriorNav  float64   `json:"prior_nav"`
	Estimate  float64   `json:"estimate"`
	ChangePct float64   `json:"change_pct"`
	QuoteTime string    `json:"quote_time"`
	Retrieved time.Time `json:"retrieved"`
}

// NavPoint is a single published net-asset-value observation.
type NavPoint struct {
	Date time.Time `json:"date"`
	Nav  float64   `json:"nav"`
}

// NavHistory is a cached NAV series for one fund.
type NavHistory struct {
	FundID      string     `json:"fund_id"`
	Days        int        `json:"days"` // lookback window the series was fetched for
	Points      []NavPoint `json:"points"`
	LastUpdated time.Time  `json:"last_updated"`
}

// WindowFrom returns the points at or after the cutoff date.
func (h *NavHistory) WindowFrom(cutoff time.Time) []NavPoint {
	var out []NavPoint
	for _, p := range h.Points {
		if !p.Date.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}
