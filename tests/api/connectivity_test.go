// Package api holds integration tests that exercise live endpoints.
// They are skipped unless the relevant environment variables are set.
package api

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ldsbg/fundkeeper/internal/clients/eastmoney"
	"github.com/ldsbg/fundkeeper/internal/common"
)

// TestEastmoneyConnectivity verifies the live quote feed is reachable.
func TestEastmoneyConnectivity(t *testing.T) {
	fundID := os.Getenv("FUNDKEEPER_LIVE_FUND")
	if fundID == "" {
		t.Skip("FUNDKEEPER_LIVE_FUND not set")
	}

	logger := common.NewLogger("debug")
	client := eastmoney.NewClient(eastmoney.WithLogger(logger))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	quote, err := client.GetQuote(ctx, fundID)
	require.NoError(t, err, "Eastmoney GetQuote failed")
	require.Equal(t, fundID, quote.FundID)
	require.NotEmpty(t, quote.Name)
	require.Greater(t, quote.Estimate, 0.0)

	t.Logf("Eastmoney OK: %s (%s) estimate %.4f (%+.2f%%)", quote.Name, quote.FundID, quote.Estimate, quote.ChangePct)

	history, err := client.GetNavHistory(ctx, fundID, 30)
	require.NoError(t, err, "Eastmoney GetNavHistory failed")
	require.NotEmpty(t, history, "Eastmoney returned no NAV history")

	last := history[len(history)-1]
	t.Logf("  History: %d points, last %s = %.4f", len(history), last.Date.Format("2006-01-02"), last.Nav)
}
