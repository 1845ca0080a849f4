package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zonebet/engine/internal/application/engine"
	"github.com/zonebet/engine/internal/application/ledger"
	"github.com/zonebet/engine/internal/application/positions"
	"github.com/zonebet/engine/internal/domain"
)

// stubFeed serves a fixed price history and an injectable sample channel.
type stubFeed struct {
	prices  []float64
	samples chan domain.PriceSample
}

func newStubFeed(prices ...float64) *stubFeed {
	return &stubFeed{prices: prices, samples: make(chan domain.PriceSample, 16)}
}

func (f *stubFeed) Subscribe() (<-chan domain.PriceSample, func()) {
	return f.samples, func() {}
}

func (f *stubFeed) RecentPrices(n int) []float64 {
	if len(f.prices) <= n {
		return append([]float64(nil), f.prices...)
	}
	return append([]float64(nil), f.prices[len(f.prices)-n:]...)
}

func (f *stubFeed) push(price float64) {
	f.samples <- domain.PriceSample{Price: price, ObservedAt: time.Now()}
}

// stubVenue counts opens/closes and can fail opens on demand.
type stubVenue struct {
	mu      sync.Mutex
	openErr error
	opens   int
	closes  int
	balance domain.VenueBalance
	balErr  error
}

func (v *stubVenue) OpenPosition(_ context.Context, _ domain.Direction, _ float64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.openErr != nil {
		return "", v.openErr
	}
	v.opens++
	return "venue-open", nil
}

func (v *stubVenue) ClosePosition(_ context.Context, _ string, _ float64) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closes++
	return "venue-close", nil
}

func (v *stubVenue) AccountBalance(context.Context) (domain.VenueBalance, error) {
	return v.balance, v.balErr
}

func newEngine(feed *stubFeed, venue *stubVenue) (*engine.Engine, *ledger.Ledger) {
	lgr := ledger.New(nil, nil, nil)
	cfg := engine.Config{
		ExpirySweepInterval: 10 * time.Millisecond,
		SettlementInterval:  20 * time.Millisecond,
		ReconcileInterval:   time.Hour,
		ReportInterval:      time.Hour,
	}
	return engine.New(cfg, feed, positions.NewStore(), lgr, venue, nil), lgr
}

func fundAccount(t *testing.T, lgr *ledger.Ledger, userID string, amount float64) {
	t.Helper()
	require.NoError(t, lgr.CreditVerifiedDeposit(context.Background(), userID, "tx-"+userID, amount, amount))
}

func upBet(collateral float64) engine.BetRequest {
	return engine.BetRequest{
		UserID:      "alice",
		Direction:   domain.DirectionUp,
		TargetPrice: 100.1,
		ZoneLow:     100.05,
		ZoneHigh:    100.15,
		Collateral:  collateral,
		ExpiresIn:   30 * time.Second,
	}
}

func TestPlaceBet_QuotesLeverageAndDebits(t *testing.T) {
	feed := newStubFeed(100, 100, 100, 100)
	venue := &stubVenue{}
	e, lgr := newEngine(feed, venue)
	fundAccount(t, lgr, "alice", 50)

	pos, err := e.PlaceBet(context.Background(), upBet(10))
	require.NoError(t, err)

	// Flat history → volatility floor 0.002 → volFactor capped at 1.3;
	// distance 0.1% → base 7.5; 30s expiry → timeFactor 1.0 → leverage 10.
	assert.Equal(t, 10, pos.Leverage)
	assert.Equal(t, domain.StatusActive, pos.Status)
	assert.Equal(t, "venue-open", pos.VenueRef)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-9)

	assert.InDelta(t, 40.0, lgr.GetOrCreate("alice").Balance, 1e-9)
	assert.Len(t, e.Positions().Active(), 1)
}

func TestPlaceBet_VenueOpenFailureRefunds(t *testing.T) {
	feed := newStubFeed(100, 100, 100, 100)
	venue := &stubVenue{openErr: errors.New("venue rejected")}
	e, lgr := newEngine(feed, venue)
	fundAccount(t, lgr, "alice", 50)

	_, err := e.PlaceBet(context.Background(), upBet(10))
	assert.ErrorIs(t, err, domain.ErrTradeExecution)

	// Scenario: balance returns to 50 and no position persists as active.
	assert.InDelta(t, 50.0, lgr.GetOrCreate("alice").Balance, 1e-9)
	assert.Empty(t, e.Positions().Active())
}

func TestPlaceBet_InsufficientBalanceNoVenueCall(t *testing.T) {
	feed := newStubFeed(100, 100, 100)
	venue := &stubVenue{}
	e, lgr := newEngine(feed, venue)
	fundAccount(t, lgr, "alice", 5)

	_, err := e.PlaceBet(context.Background(), upBet(10))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Zero(t, venue.opens)
}

func TestPlaceBet_NoPriceYet(t *testing.T) {
	e, lgr := newEngine(newStubFeed(), &stubVenue{})
	fundAccount(t, lgr, "alice", 50)

	_, err := e.PlaceBet(context.Background(), upBet(10))
	assert.Error(t, err)
	assert.InDelta(t, 50.0, lgr.GetOrCreate("alice").Balance, 1e-9)
}

func TestRun_WinFlowSettlesAndCredits(t *testing.T) {
	feed := newStubFeed(100, 100, 100, 100)
	venue := &stubVenue{}
	e, lgr := newEngine(feed, venue)
	fundAccount(t, lgr, "alice", 50)

	pos, err := e.PlaceBet(context.Background(), upBet(10))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// Price enters the zone → win → settlement closes the venue leg and
	// credits principal + pnl.
	feed.push(100.1)

	require.Eventually(t, func() bool {
		p, _ := e.Positions().Get(pos.ID)
		return p.Settled
	}, 2*time.Second, 10*time.Millisecond)

	p, _ := e.Positions().Get(pos.ID)
	assert.Equal(t, domain.StatusWon, p.Status)
	// 0.1% move at 10x on $10 → pnl 0.10; balance 40 + 10 + 0.10.
	assert.InDelta(t, 0.10, p.RealizedPnL, 1e-9)
	assert.InDelta(t, 50.10, lgr.GetOrCreate("alice").Balance, 1e-9)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_ExpirySweepLosesStaleBet(t *testing.T) {
	feed := newStubFeed(100, 100, 100, 100)
	venue := &stubVenue{}
	e, lgr := newEngine(feed, venue)
	fundAccount(t, lgr, "alice", 50)

	req := upBet(10)
	req.ExpiresIn = 30 * time.Millisecond
	pos, err := e.PlaceBet(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	// No samples at all: only the time sweep can resolve it.
	require.Eventually(t, func() bool {
		p, _ := e.Positions().Get(pos.ID)
		return p.Settled
	}, 2*time.Second, 10*time.Millisecond)

	p, _ := e.Positions().Get(pos.ID)
	assert.Equal(t, domain.StatusLost, p.Status)
	assert.InDelta(t, -10.0, p.RealizedPnL, 1e-9)
	// Collateral was debited at placement; a loss changes nothing more.
	assert.InDelta(t, 40.0, lgr.GetOrCreate("alice").Balance, 1e-9)
}

func TestReconcile_Shortfall(t *testing.T) {
	feed := newStubFeed(100, 100, 100)
	venue := &stubVenue{balance: domain.VenueBalance{Total: 30, Free: 10}}
	e, lgr := newEngine(feed, venue)
	fundAccount(t, lgr, "alice", 50)

	health := e.Reconcile(context.Background())
	assert.False(t, health.Healthy())
	assert.InDelta(t, 20.0, health.Shortfall, 1e-9)
}

func TestReconcile_HealthyAndVenueError(t *testing.T) {
	feed := newStubFeed(100)
	venue := &stubVenue{balance: domain.VenueBalance{Total: 100, Free: 80}}
	e, lgr := newEngine(feed, venue)
	fundAccount(t, lgr, "alice", 50)

	assert.True(t, e.Reconcile(context.Background()).Healthy())

	venue.balErr = errors.New("venue timeout")
	health := e.Reconcile(context.Background())
	assert.False(t, health.Healthy())
	assert.Equal(t, "venue timeout", health.VenueQueryErr)
}
