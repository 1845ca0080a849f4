package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zonebet/engine/internal/domain"
)

// StaticVerifier accepts every transfer at face value. Used in dry-run mode
// where no RPC endpoint is available.
type StaticVerifier struct{}

func (StaticVerifier) VerifyTransfer(_ context.Context, txRef string, expectedAmount float64, _ string) (domain.TransferProof, error) {
	slog.Debug("onchain: dry-run verify", "tx", txRef, "amount", expectedAmount)
	return domain.TransferProof{Verified: true, ActualAmount: expectedAmount}, nil
}

// NullPayer pretends to send funds and returns a synthetic reference.
type NullPayer struct{}

func (NullPayer) SendFunds(_ context.Context, destination string, amount float64) (string, error) {
	slog.Info("onchain: dry-run payout", "to", destination, "amount", amount)
	return fmt.Sprintf("dry-run-payout-%d", time.Now().UnixNano()), nil
}
