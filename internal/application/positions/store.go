package positions

// Authoritative set of open and resolved positions. A single store mutex
// owns every status transition, so concurrent price samples and the expiry
// ticker can never race a position into transitioning twice.

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zonebet/engine/internal/domain"
)

// MaxSettlementAttempts is how many venue close failures a position absorbs
// before it is surfaced as needing manual settlement and never retried.
const MaxSettlementAttempts = 5

// Store holds every position, active or resolved. Positions are never
// deleted; resolved ones remain as history.
type Store struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	order     []string // insertion order, for stable iteration

	now func() time.Time
}

// NewStore creates an empty position store.
func NewStore() *Store {
	return &Store{
		positions: make(map[string]*domain.Position),
		now:       time.Now,
	}
}

// Add registers a freshly opened position. Called only after the venue leg
// opened successfully, so the detector never sees a position without one.
func (s *Store) Add(p domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.positions[p.ID] = &cp
	s.order = append(s.order, p.ID)
}

// Get returns a copy of the position, if known.
func (s *Store) Get(id string) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Evaluate runs the win/loss rules for every active position against one
// price sample and returns copies of the positions that transitioned.
//
// Rule order per position: zone hit first, expiry second. The zone check
// wins even when the sample arrives after expiry — the first evaluation
// decides, whichever rule fires.
func (s *Store) Evaluate(sample domain.PriceSample) []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var transitioned []domain.Position
	for _, id := range s.order {
		p := s.positions[id]
		if p.Status != domain.StatusActive {
			continue
		}

		switch {
		case p.InZone(sample.Price):
			pct := relMove(p.EntryPrice, sample.Price)
			p.Status = domain.StatusWon
			p.RealizedPnL = domain.Profit(p.Collateral, p.Leverage, pct)
			slog.Info("positions: zone hit",
				"position", p.ID, "user", p.UserID,
				"price", sample.Price, "pnl", p.RealizedPnL)
			transitioned = append(transitioned, *p)
		case !now.Before(p.ExpiresAt):
			p.Status = domain.StatusLost
			p.RealizedPnL = -p.Collateral
			slog.Info("positions: expired without zone hit",
				"position", p.ID, "user", p.UserID)
			transitioned = append(transitioned, *p)
		}
	}
	return transitioned
}

// SweepExpired applies the expiry rule without a price sample, so a flat or
// stale market cannot leave positions perpetually active.
func (s *Store) SweepExpired() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var transitioned []domain.Position
	for _, id := range s.order {
		p := s.positions[id]
		if p.Status != domain.StatusActive || now.Before(p.ExpiresAt) {
			continue
		}
		p.Status = domain.StatusLost
		p.RealizedPnL = -p.Collateral
		slog.Info("positions: expiry sweep", "position", p.ID, "user", p.UserID)
		transitioned = append(transitioned, *p)
	}
	return transitioned
}

// PendingSettlement returns resolved, unsettled positions that still have
// retry budget and a venue leg to close.
func (s *Store) PendingSettlement() []domain.Position {
	return s.filter(func(p *domain.Position) bool {
		return p.Resolved() && !p.Settled &&
			p.SettlementAttempts < MaxSettlementAttempts && p.VenueRef != ""
	})
}

// FailedSettlements returns positions that exhausted their retry budget.
// They stay visible forever; nothing drops them silently.
func (s *Store) FailedSettlements() []domain.Position {
	return s.filter(func(p *domain.Position) bool {
		return p.Resolved() && !p.Settled && p.SettlementAttempts >= MaxSettlementAttempts
	})
}

// Active returns copies of the positions still awaiting an outcome.
func (s *Store) Active() []domain.Position {
	return s.filter(func(p *domain.Position) bool {
		return p.Status == domain.StatusActive
	})
}

// MarkSettled flips settled false→true and records the venue closing
// reference. Errors when the position is unknown, still active, or already
// settled — the caller must treat any error as "do not touch the ledger".
func (s *Store) MarkSettled(id, closeRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return fmt.Errorf("positions.MarkSettled: %s: %w", id, domain.ErrUnknownPosition)
	}
	if !p.Resolved() {
		return fmt.Errorf("positions.MarkSettled: %s is still active", id)
	}
	if p.Settled {
		return fmt.Errorf("positions.MarkSettled: %s already settled", id)
	}
	p.Settled = true
	p.CloseRef = closeRef
	return nil
}

// RecordSettlementFailure increments the attempt counter and reports the
// updated count. Counting stops once settled.
func (s *Store) RecordSettlementFailure(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return 0, fmt.Errorf("positions.RecordSettlementFailure: %s: %w", id, domain.ErrUnknownPosition)
	}
	if p.Settled {
		return 0, fmt.Errorf("positions.RecordSettlementFailure: %s already settled", id)
	}
	p.SettlementAttempts++
	return p.SettlementAttempts, nil
}

// Counts returns (active, resolved-unsettled, settled) totals.
func (s *Store) Counts() (active, pending, settled int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.positions {
		switch {
		case p.Status == domain.StatusActive:
			active++
		case p.Settled:
			settled++
		default:
			pending++
		}
	}
	return active, pending, settled
}

func (s *Store) filter(keep func(*domain.Position) bool) []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, id := range s.order {
		if p := s.positions[id]; keep(p) {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out
}

func relMove(entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	move := (price - entry) / entry
	if move < 0 {
		return -move
	}
	return move
}
