// Package common provides shared utilities for FundKeeper
package common

import "time"

// Freshness TTLs for cached market data
const (
	// NAV history changes at most once per trading day; a short TTL keeps
	// the dashboard responsive without hammering the upstream endpoint.
	FreshnessNavHistory = 5 * time.Minute
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}
