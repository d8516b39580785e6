package app

import (
	"context"
	"time"

	"github.com/ldsbg/fundkeeper/internal/common"
	"github.com/ldsbg/fundkeeper/internal/interfaces"
)

// startSnapshotScheduler refreshes dashboard snapshots on a fixed
// interval for the configured users. Snapshot is a read-only aggregate
// (plus the daily asset-history append); the scheduler never mutates
// holdings.
func startSnapshotScheduler(ctx context.Context, portfolioService interfaces.PortfolioService, users []string, interval time.Duration, logger *common.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Snapshot scheduler: stopped")
			return
		case <-ticker.C:
			refreshSnapshots(ctx, portfolioService, users, logger)
		}
	}
}

func refreshSnapshots(ctx context.Context, portfolioService interfaces.PortfolioService, users []string, logger *common.Logger) {
	start := time.Now()

	for _, user := range users {
		snap, err := portfolioService.Snapshot(ctx, user)
		if err != nil {
			logger.Warn().Err(err).Str("user", user).Msg("Snapshot refresh failed")
			continue
		}
		logger.Debug().
			Str("user", user).
			Int("positions", len(snap.Positions)).
			Int("stale", len(snap.Stale)).
			Float64("total", snap.TotalMarketValue).
			Msg("Snapshot refreshed")
	}

	logger.Info().
		Int("users", len(users)).
		Dur("elapsed", time.Since(start)).
		Msg("Snapshot refresh: complete")
}
