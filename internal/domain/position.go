package domain

import (
	"math"
	"time"
)

// Direction is the side of a zone bet.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// PositionStatus is the game-level outcome of a position. It is independent
// of settlement: a Won or Lost position still needs its venue leg closed.
type PositionStatus string

const (
	StatusActive PositionStatus = "ACTIVE"
	StatusWon    PositionStatus = "WON"
	StatusLost   PositionStatus = "LOST"
)

// Position is a single user's leveraged prediction that the price enters the
// zone [ZoneLow, ZoneHigh] before ExpiresAt.
//
// Two independent terminal transitions:
//
//	Status:  ACTIVE → WON | LOST   (exactly once, first qualifying sample)
//	Settled: false → true          (at most once, after a confirmed venue close)
//
// A position is never reopened, reset, or deleted; resolved positions are
// retained as history.
type Position struct {
	ID     string
	UserID string

	Direction   Direction
	EntryPrice  float64
	TargetPrice float64
	ZoneLow     float64
	ZoneHigh    float64

	Collateral float64
	Leverage   int

	PlacedAt  time.Time
	ExpiresAt time.Time

	Status      PositionStatus
	RealizedPnL float64 // set when Status leaves ACTIVE

	Settled            bool
	SettlementAttempts int
	VenueRef           string // external position handle from the venue open
	CloseRef           string // external handle recorded at venue close
}

// Notional is the effective size of the venue leg.
func (p *Position) Notional() float64 {
	return p.Collateral * float64(p.Leverage)
}

// InZone reports whether price falls inside the target band. The band is
// normalized so callers may store the bounds in either order.
func (p *Position) InZone(price float64) bool {
	lo := math.Min(p.ZoneLow, p.ZoneHigh)
	hi := math.Max(p.ZoneLow, p.ZoneHigh)
	return price >= lo && price <= hi
}

// Resolved reports whether the game outcome is known.
func (p *Position) Resolved() bool {
	return p.Status != StatusActive
}

// PriceSample is one observation from the external price feed. The core only
// consumes samples; the feed owns reconnection and ordering.
type PriceSample struct {
	Price      float64
	ObservedAt time.Time
}
