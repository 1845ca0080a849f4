package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/zonebet/engine/internal/ports"
)

const venueBalanceTimeout = 10 * time.Second

// Reconcile compares aggregate ledger balances against the venue's
// custodial collateral. A shortfall means user balances exceed what the
// venue would return if everything were flattened now — a health alert for
// the operator, not an error on any single operation.
func (e *Engine) Reconcile(ctx context.Context) ports.HealthStatus {
	status := ports.HealthStatus{LedgerTotal: e.ledger.TotalBalances()}

	balCtx, cancel := context.WithTimeout(ctx, venueBalanceTimeout)
	defer cancel()

	bal, err := e.venue.AccountBalance(balCtx)
	if err != nil {
		status.VenueQueryErr = err.Error()
		slog.Warn("engine: reconcile could not query venue balance", "err", err)
		return status
	}

	status.VenueTotal = bal.Total
	status.VenueFree = bal.Free
	if gap := status.LedgerTotal - bal.Total; gap > 0 {
		status.Shortfall = gap
		slog.Error("engine: LIQUIDITY SHORTFALL",
			"ledger_total", status.LedgerTotal,
			"venue_total", bal.Total,
			"shortfall", gap)
	}
	return status
}
