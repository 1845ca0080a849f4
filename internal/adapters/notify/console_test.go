package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zonebet/engine/internal/adapters/notify"
	"github.com/zonebet/engine/internal/domain"
	"github.com/zonebet/engine/internal/ports"
)

func makeReport() ports.CycleReport {
	return ports.CycleReport{
		Active: []domain.Position{{
			ID:         "pos-active-1234567890",
			UserID:     "alice",
			Direction:  domain.DirectionUp,
			ZoneLow:    100.05,
			ZoneHigh:   100.15,
			Collateral: 10,
			Leverage:   10,
			ExpiresAt:  time.Date(2026, 1, 2, 15, 30, 0, 0, time.UTC),
		}},
		FailedSettlement: []domain.Position{{
			ID:                 "pos-stuck-1234567890",
			UserID:             "bob",
			Status:             domain.StatusWon,
			RealizedPnL:        2.10,
			SettlementAttempts: 5,
			VenueRef:           "venue-ref-1234567890",
		}},
		Counts: ports.PositionCounts{Active: 1, Pending: 1},
		Accounts: []domain.Account{
			{UserID: "alice", Balance: 40},
			{UserID: "bob", Balance: 52.10},
		},
		Health: ports.HealthStatus{LedgerTotal: 92.10, VenueTotal: 120, VenueFree: 80},
	}
}

func TestConsole_Notify_Full(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.Notify(context.Background(), makeReport()))

	out := buf.String()
	assert.Contains(t, out, "1 active")
	assert.Contains(t, out, "needing manual settlement")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "UP")
	assert.Contains(t, out, "$100.00") // notional of 10 x 10
	assert.Contains(t, out, "$2.10")
	assert.Contains(t, out, "$92.10")
	assert.Contains(t, out, "Coverage OK")
}

func TestConsole_Notify_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.Notify(context.Background(), makeReport()))

	out := buf.String()
	assert.Contains(t, out, "1 active")
	assert.Contains(t, out, "1 settling")
	assert.Contains(t, out, "0 settled")
	assert.Contains(t, out, "1 manual")
	assert.Contains(t, out, "2 accounts ($92.10)")
	assert.Contains(t, out, "venue OK")
}

func TestConsole_Notify_ManualSettlementIncludesLost(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	// A lost position can also exhaust its close retries; the manual
	// settlement table covers both outcomes.
	report := makeReport()
	report.FailedSettlement = append(report.FailedSettlement, domain.Position{
		ID:                 "pos-lost-1234567890",
		UserID:             "carol",
		Status:             domain.StatusLost,
		SettlementAttempts: 5,
		VenueRef:           "venue-ref-0987654321",
	})

	require.NoError(t, n.Notify(context.Background(), report))
	out := buf.String()
	assert.Contains(t, out, "2 position(s) need manual settlement")
	assert.Contains(t, out, "LOST")
}

func TestConsole_Notify_Shortfall(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	report := makeReport()
	report.Health = ports.HealthStatus{LedgerTotal: 92.10, VenueTotal: 70, VenueFree: 10, Shortfall: 22.10}

	require.NoError(t, n.Notify(context.Background(), report))
	assert.Contains(t, buf.String(), "LIQUIDITY SHORTFALL: $22.10")
}

func TestConsole_Notify_VenueUnreachable(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	report := makeReport()
	report.Health = ports.HealthStatus{LedgerTotal: 92.10, VenueQueryErr: "connection refused"}

	require.NoError(t, n.Notify(context.Background(), report))
	assert.Contains(t, buf.String(), "UNREACHABLE")
	assert.Contains(t, buf.String(), "connection refused")
}
