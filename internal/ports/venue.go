package ports

import (
	"context"

	"github.com/zonebet/engine/internal/domain"
)

// VenueExecutor drives the external trading venue that holds the real
// leveraged positions backing user bets.
type VenueExecutor interface {
	// OpenPosition opens a leveraged position sized to notional and returns
	// the venue's opaque reference for it.
	OpenPosition(ctx context.Context, direction domain.Direction, notional float64) (string, error)

	// ClosePosition flattens the position identified by venueRef, sized to
	// notional (partial close allowed). Must be safe to retry when the
	// position is already flat; returns the venue's closing reference.
	ClosePosition(ctx context.Context, venueRef string, notional float64) (string, error)

	// AccountBalance returns the custodial collateral held at the venue.
	AccountBalance(ctx context.Context) (domain.VenueBalance, error)
}
