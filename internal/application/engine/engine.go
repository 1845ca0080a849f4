package engine

// Orchestration: wires the price feed into the win/loss detector, triggers
// settlement sweeps, runs the periodic expiry sweep and ledger/venue
// reconciliation. The feed subscription is an injected service with an
// explicit unsubscribe; nothing here is global.

import (
	"context"
	"log/slog"
	"time"

	"github.com/zonebet/engine/internal/application/ledger"
	"github.com/zonebet/engine/internal/application/positions"
	"github.com/zonebet/engine/internal/application/settlement"
	"github.com/zonebet/engine/internal/ports"
)

// Config holds the engine's loop intervals.
type Config struct {
	ExpirySweepInterval time.Duration // time-only loss check for stale markets
	SettlementInterval  time.Duration // retry cadence for pending settlements
	ReconcileInterval   time.Duration // ledger vs venue balance check
	ReportInterval      time.Duration // operator console report
}

// DefaultConfig returns the reference intervals.
func DefaultConfig() Config {
	return Config{
		ExpirySweepInterval: 2 * time.Second,
		SettlementInterval:  10 * time.Second,
		ReconcileInterval:   30 * time.Second,
		ReportInterval:      30 * time.Second,
	}
}

// Engine drives the position lifecycle end to end.
type Engine struct {
	cfg      Config
	feed     ports.PriceFeed
	store    *positions.Store
	ledger   *ledger.Ledger
	venue    ports.VenueExecutor
	settle   *settlement.Pipeline
	notifier ports.Notifier

	lastHealth ports.HealthStatus
}

// New wires the engine. The settlement pipeline is built here so every
// trigger path shares the same sweep mutex.
func New(cfg Config, feed ports.PriceFeed, store *positions.Store, lgr *ledger.Ledger, venue ports.VenueExecutor, notifier ports.Notifier) *Engine {
	if cfg.ExpirySweepInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg:      cfg,
		feed:     feed,
		store:    store,
		ledger:   lgr,
		venue:    venue,
		settle:   settlement.New(store, venue, lgr),
		notifier: notifier,
	}
}

// Ledger exposes the ledger for deposit/withdrawal entry points.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Positions exposes the position store for read-only inspection.
func (e *Engine) Positions() *positions.Store { return e.store }

// Run blocks until ctx is cancelled, processing price samples and timers.
func (e *Engine) Run(ctx context.Context) error {
	samples, unsubscribe := e.feed.Subscribe()
	defer unsubscribe()

	expiryTick := time.NewTicker(e.cfg.ExpirySweepInterval)
	defer expiryTick.Stop()
	settleTick := time.NewTicker(e.cfg.SettlementInterval)
	defer settleTick.Stop()
	reconcileTick := time.NewTicker(e.cfg.ReconcileInterval)
	defer reconcileTick.Stop()
	reportTick := time.NewTicker(e.cfg.ReportInterval)
	defer reportTick.Stop()

	slog.Info("engine: started",
		"expiry_sweep", e.cfg.ExpirySweepInterval,
		"settlement", e.cfg.SettlementInterval,
		"reconcile", e.cfg.ReconcileInterval,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: stopping")
			return nil

		case sample, ok := <-samples:
			if !ok {
				slog.Warn("engine: price feed closed")
				return nil
			}
			if resolved := e.store.Evaluate(sample); len(resolved) > 0 {
				// The sweep serializes itself; a trigger while one is in
				// flight is a no-op and the ticker catches leftovers.
				go e.settle.Sweep(ctx)
			}

		case <-expiryTick.C:
			if resolved := e.store.SweepExpired(); len(resolved) > 0 {
				go e.settle.Sweep(ctx)
			}

		case <-settleTick.C:
			go e.settle.Sweep(ctx)

		case <-reconcileTick.C:
			e.lastHealth = e.Reconcile(ctx)

		case <-reportTick.C:
			e.report(ctx)
		}
	}
}

func (e *Engine) report(ctx context.Context) {
	if e.notifier == nil {
		return
	}
	active, pending, settled := e.store.Counts()
	report := ports.CycleReport{
		Active:           e.store.Active(),
		FailedSettlement: e.store.FailedSettlements(),
		Counts:           ports.PositionCounts{Active: active, Pending: pending, Settled: settled},
		Accounts:         e.ledger.Accounts(),
		Health:           e.lastHealth,
	}
	if err := e.notifier.Notify(ctx, report); err != nil {
		slog.Warn("engine: notifier error", "err", err)
	}
}
