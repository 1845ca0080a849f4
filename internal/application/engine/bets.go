package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zonebet/engine/internal/domain"
)

// volatilityWindow is how many recent prices feed the volatility estimate
// when quoting a bet's leverage.
const volatilityWindow = 30

// BetRequest is a user's zone prediction as it arrives at the engine.
type BetRequest struct {
	UserID      string
	Direction   domain.Direction
	TargetPrice float64
	ZoneLow     float64
	ZoneHigh    float64
	Collateral  float64
	ExpiresIn   time.Duration
}

// PlaceBet runs the full placement flow:
//
//  1. quote leverage from the current price and recent volatility
//  2. debit collateral (fails fast on insufficient balance)
//  3. open the venue leg — on failure refund the debit and return
//     ErrTradeExecution; no position ever reaches the detector
//  4. register the position with the store
func (e *Engine) PlaceBet(ctx context.Context, req BetRequest) (domain.Position, error) {
	if req.Collateral <= 0 {
		return domain.Position{}, fmt.Errorf("engine.PlaceBet: collateral must be positive")
	}
	if req.ExpiresIn <= 0 {
		return domain.Position{}, fmt.Errorf("engine.PlaceBet: expiry must be in the future")
	}

	prices := e.feed.RecentPrices(volatilityWindow)
	if len(prices) == 0 {
		return domain.Position{}, fmt.Errorf("engine.PlaceBet: no price available yet")
	}
	current := prices[len(prices)-1]

	vol := domain.RecentVolatility(prices)
	leverage := domain.RequiredLeverage(current, req.TargetPrice, req.ExpiresIn.Seconds(), vol)
	notional := req.Collateral * float64(leverage)

	betID, err := e.ledger.DebitForBet(ctx, req.UserID, req.Collateral)
	if err != nil {
		return domain.Position{}, err
	}

	venueRef, err := e.venue.OpenPosition(ctx, req.Direction, notional)
	if err != nil {
		// Compensating action: the debit must be fully restored before the
		// failure is reported.
		if rerr := e.ledger.CreditRefund(ctx, req.UserID, betID, req.Collateral); rerr != nil {
			slog.Error("engine: refund after failed open also failed",
				"user", req.UserID, "bet", betID, "err", rerr)
		}
		return domain.Position{}, fmt.Errorf("engine.PlaceBet: venue open: %v: %w",
			err, domain.ErrTradeExecution)
	}

	now := time.Now()
	pos := domain.Position{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Direction:   req.Direction,
		EntryPrice:  current,
		TargetPrice: req.TargetPrice,
		ZoneLow:     req.ZoneLow,
		ZoneHigh:    req.ZoneHigh,
		Collateral:  req.Collateral,
		Leverage:    leverage,
		PlacedAt:    now,
		ExpiresAt:   now.Add(req.ExpiresIn),
		Status:      domain.StatusActive,
		VenueRef:    venueRef,
	}
	e.store.Add(pos)

	slog.Info("engine: bet placed",
		"user", req.UserID, "position", pos.ID,
		"direction", req.Direction, "target", req.TargetPrice,
		"collateral", req.Collateral, "leverage", leverage,
		"notional", notional, "expires", pos.ExpiresAt.Format("15:04:05"))
	return pos, nil
}
