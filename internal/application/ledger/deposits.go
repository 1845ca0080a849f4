package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zonebet/engine/internal/domain"
)

// Deposit verifies a claimed on-chain transfer and credits it. The chain
// verifier reports what actually happened; the tolerance check against the
// claimed amount lives here.
func (l *Ledger) Deposit(ctx context.Context, userID, txRef string, amount float64, recipient string) error {
	if l.verifier == nil {
		return fmt.Errorf("ledger.Deposit: no chain verifier configured")
	}

	// Cheap replay check before hitting the chain. The authoritative check
	// happens again inside CreditVerifiedDeposit under the registry lock.
	l.mu.Lock()
	seen := l.txRefs[txRef]
	l.mu.Unlock()
	if seen {
		return fmt.Errorf("ledger.Deposit: txRef %s: %w", txRef, domain.ErrDuplicateDeposit)
	}

	proof, err := l.verifier.VerifyTransfer(ctx, txRef, amount, recipient)
	if err != nil {
		return fmt.Errorf("ledger.Deposit: verify %s: %w", txRef, err)
	}
	if !proof.Verified {
		return fmt.Errorf("ledger.Deposit: transfer %s not confirmed on chain", txRef)
	}

	if err := l.CreditVerifiedDeposit(ctx, userID, txRef, amount, proof.ActualAmount); err != nil {
		return err
	}

	slog.Info("ledger: deposit credited", "user", userID, "txRef", txRef, "amount", amount)
	return nil
}
