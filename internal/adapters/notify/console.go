package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/zonebet/engine/internal/domain"
	"github.com/zonebet/engine/internal/ports"
)

// Console implements ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify prints the report in the configured mode.
func (c *Console) Notify(_ context.Context, report ports.CycleReport) error {
	if c.table {
		c.printFull(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact prints the essentials on a single line.
func (c *Console) printCompact(report ports.CycleReport) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d active | %d settling | %d settled | %d manual | %d accounts ($%.2f)",
		now, report.Counts.Active, report.Counts.Pending, report.Counts.Settled,
		len(report.FailedSettlement),
		len(report.Accounts), totalBalance(report.Accounts))

	h := report.Health
	if h.VenueQueryErr != "" {
		fmt.Fprintf(&sb, " | venue: UNREACHABLE (%s)", h.VenueQueryErr)
	} else if h.Shortfall > 0 {
		fmt.Fprintf(&sb, " | !! SHORTFALL $%.2f (ledger $%.2f vs venue $%.2f)",
			h.Shortfall, h.LedgerTotal, h.VenueTotal)
	} else {
		fmt.Fprintf(&sb, " | venue OK ($%.2f free)", h.VenueFree)
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull prints the position tables and the liquidity summary.
func (c *Console) printFull(report ports.CycleReport) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] engine report — %d active, %d needing manual settlement\n",
		now, len(report.Active), len(report.FailedSettlement))

	if len(report.Active) > 0 {
		c.printActiveTable(report.Active)
	}
	if len(report.FailedSettlement) > 0 {
		c.printFailedTable(report.FailedSettlement)
	}
	c.printLedgerSummary(report)
}

func (c *Console) printActiveTable(positions []domain.Position) {
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "User", "Dir", "Zone", "Collat", "Lev", "Notional", "Expires")

	for _, p := range positions {
		table.Append(
			shortID(p.ID),
			shortID(p.UserID),
			string(p.Direction),
			fmt.Sprintf("%.2f–%.2f", p.ZoneLow, p.ZoneHigh),
			fmt.Sprintf("$%.2f", p.Collateral),
			fmt.Sprintf("%dx", p.Leverage),
			fmt.Sprintf("$%.2f", p.Notional()),
			p.ExpiresAt.Format("15:04:05"),
		)
	}
	table.Render()
}

func (c *Console) printFailedTable(positions []domain.Position) {
	fmt.Fprintf(c.out, "\n  !! %d position(s) need manual settlement:\n", len(positions))

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "User", "Status", "PnL", "Attempts", "Venue Ref")

	for _, p := range positions {
		table.Append(
			shortID(p.ID),
			shortID(p.UserID),
			string(p.Status),
			fmt.Sprintf("$%.2f", p.RealizedPnL),
			fmt.Sprintf("%d", p.SettlementAttempts),
			shortID(p.VenueRef),
		)
	}
	table.Render()
}

func (c *Console) printLedgerSummary(report ports.CycleReport) {
	h := report.Health

	fmt.Fprintf(c.out, "\n  Ledger: %d accounts, $%.2f total\n",
		len(report.Accounts), totalBalance(report.Accounts))

	if h.VenueQueryErr != "" {
		fmt.Fprintf(c.out, "  Venue:  UNREACHABLE — %s\n\n", h.VenueQueryErr)
		return
	}

	fmt.Fprintf(c.out, "  Venue:  $%.2f total, $%.2f free\n", h.VenueTotal, h.VenueFree)
	if h.Shortfall > 0 {
		fmt.Fprintf(c.out, "  !! LIQUIDITY SHORTFALL: $%.2f not covered by venue balance\n\n", h.Shortfall)
	} else {
		fmt.Fprintf(c.out, "  Coverage OK (surplus $%.2f)\n\n", h.VenueTotal-h.LedgerTotal)
	}
}

// --- helpers ---

func totalBalance(accounts []domain.Account) float64 {
	total := 0.0
	for _, a := range accounts {
		total += a.Balance
	}
	return total
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:8] + ".."
	}
	if id == "" {
		return "-"
	}
	return id
}
