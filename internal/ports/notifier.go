package ports

import (
	"context"

	"github.com/zonebet/engine/internal/domain"
)

// PositionCounts summarizes the position set by lifecycle stage.
type PositionCounts struct {
	Active  int
	Pending int // resolved, not yet settled
	Settled int
}

// CycleReport is what one engine reporting pass hands to the notifier.
type CycleReport struct {
	Active           []domain.Position
	FailedSettlement []domain.Position
	Counts           PositionCounts
	Accounts         []domain.Account
	Health           HealthStatus
}

// HealthStatus is the reconciliation verdict: whether the venue's custodial
// balance still covers aggregate user balances.
type HealthStatus struct {
	LedgerTotal   float64
	VenueTotal    float64
	VenueFree     float64
	Shortfall     float64 // > 0 when the venue cannot cover the ledger
	VenueQueryErr string  // non-empty when the venue balance call failed
}

// Healthy reports whether no liquidity shortfall was detected.
func (h HealthStatus) Healthy() bool {
	return h.Shortfall <= 0 && h.VenueQueryErr == ""
}

// Notifier presents engine state to the operator.
type Notifier interface {
	Notify(ctx context.Context, report CycleReport) error
}
