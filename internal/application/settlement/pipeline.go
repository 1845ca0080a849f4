package settlement

// Drains resolved-but-unsettled positions: closes the venue leg, then
// reconciles the ledger. At most one sweep runs at a time; a trigger that
// arrives mid-sweep is a no-op and the next trigger picks up whatever is
// left. Failures never propagate upward — they are recorded on the position
// and the sweep moves on.

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/zonebet/engine/internal/application/positions"
	"github.com/zonebet/engine/internal/domain"
	"github.com/zonebet/engine/internal/ports"
)

const (
	// interItemDelay paces venue close calls to respect rate limits.
	interItemDelay = 500 * time.Millisecond

	// closeTimeout bounds a single venue close; a hung call must fail the
	// item, not the sweep.
	closeTimeout = 15 * time.Second
)

// WinSettler is the slice of the ledger the pipeline needs.
type WinSettler interface {
	SettleWin(ctx context.Context, userID, positionID string, principal, pnl float64) error
}

// Pipeline closes venue legs for resolved positions and updates the ledger.
type Pipeline struct {
	store  *positions.Store
	venue  ports.VenueExecutor
	ledger WinSettler

	limiter *rate.Limiter
	running chan struct{} // size-1 token: TryLock semantics for sweeps
}

// New creates a settlement pipeline over the given store, venue and ledger.
func New(store *positions.Store, venue ports.VenueExecutor, ledger WinSettler) *Pipeline {
	p := &Pipeline{
		store:   store,
		venue:   venue,
		ledger:  ledger,
		limiter: rate.NewLimiter(rate.Every(interItemDelay), 1),
		running: make(chan struct{}, 1),
	}
	return p
}

// Sweep processes every pending settlement sequentially. Returns the number
// of positions settled in this pass. A sweep requested while one is in
// flight returns immediately with 0.
func (p *Pipeline) Sweep(ctx context.Context) int {
	select {
	case p.running <- struct{}{}:
		defer func() { <-p.running }()
	default:
		slog.Debug("settlement: sweep already in flight, skipping")
		return 0
	}

	pending := p.store.PendingSettlement()
	if len(pending) == 0 {
		return 0
	}
	slog.Info("settlement: sweep start", "pending", len(pending))

	settled := 0
	for _, pos := range pending {
		if err := p.limiter.Wait(ctx); err != nil {
			return settled // context cancelled
		}
		if p.settleOne(ctx, pos) {
			settled++
		}
	}
	return settled
}

// settleOne closes one venue leg and reconciles the ledger. Reports whether
// the position was settled in this pass.
func (p *Pipeline) settleOne(ctx context.Context, pos domain.Position) bool {
	closeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
	closeRef, err := p.venue.ClosePosition(closeCtx, pos.VenueRef, pos.Notional())
	cancel()

	if err != nil {
		attempts, recErr := p.store.RecordSettlementFailure(pos.ID)
		if recErr != nil {
			slog.Warn("settlement: could not record close failure",
				"position", pos.ID, "err", recErr)
			return false
		}
		if attempts >= positions.MaxSettlementAttempts {
			slog.Error("settlement: permanent failure, needs manual settlement",
				"position", pos.ID, "user", pos.UserID,
				"venueRef", pos.VenueRef, "attempts", attempts, "err", err)
		} else {
			slog.Warn("settlement: venue close failed, will retry",
				"position", pos.ID, "attempts", attempts, "err", err)
		}
		return false
	}

	// Settled flips only after a confirmed close; a MarkSettled error
	// means another path already settled it and the ledger must not be
	// touched again.
	if err := p.store.MarkSettled(pos.ID, closeRef); err != nil {
		slog.Warn("settlement: skipping ledger update", "position", pos.ID, "err", err)
		return false
	}

	if pos.Status == domain.StatusWon {
		if err := p.ledger.SettleWin(ctx, pos.UserID, pos.ID, pos.Collateral, pos.RealizedPnL); err != nil {
			// The venue leg is flat and settled=true holds; losing the
			// ledger credit here requires manual intervention, never a
			// second close.
			slog.Error("settlement: ledger credit failed after close",
				"position", pos.ID, "user", pos.UserID, "err", err)
		}
	}

	slog.Info("settlement: position settled",
		"position", pos.ID, "status", pos.Status,
		"pnl", pos.RealizedPnL, "closeRef", closeRef)
	return true
}
