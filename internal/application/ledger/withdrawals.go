package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/zonebet/engine/internal/domain"
)

// RequestWithdrawal debits the balance and records a PENDING withdrawal.
// Phase one of the two-phase flow: the caller performs the external transfer
// and then calls CompleteWithdrawal or CancelWithdrawal.
func (l *Ledger) RequestWithdrawal(ctx context.Context, userID, destination string, amount float64) (string, error) {
	acc := l.getOrCreate(userID)

	acc.mu.Lock()
	if acc.Balance < amount {
		acc.mu.Unlock()
		return "", fmt.Errorf("ledger.RequestWithdrawal: need %.2f have %.2f: %w",
			amount, acc.Balance, domain.ErrInsufficientBalance)
	}
	id := uuid.New().String()
	acc.Balance -= amount
	acc.Withdrawals = append(acc.Withdrawals, domain.Withdrawal{
		ID:          id,
		Destination: destination,
		Amount:      amount,
		Status:      domain.WithdrawalPending,
		RequestedAt: l.now(),
	})
	snap := snapshot(acc)
	acc.mu.Unlock()

	l.persist(ctx, snap)
	return id, nil
}

// CompleteWithdrawal marks a pending withdrawal COMPLETED once the external
// transfer has been confirmed. The debit already happened at request time.
func (l *Ledger) CompleteWithdrawal(ctx context.Context, userID, withdrawalID, txRef string) error {
	return l.resolveWithdrawal(ctx, userID, withdrawalID, func(w *domain.Withdrawal, acc *account) {
		w.TxRef = txRef
		w.Status = domain.WithdrawalCompleted
		w.ResolvedAt = l.now()
		acc.TotalWithdrawals += w.Amount
	})
}

// CancelWithdrawal re-credits the debited amount and marks the withdrawal
// FAILED. Compensates a failed external transfer; after this the balance
// equals its pre-withdrawal value.
func (l *Ledger) CancelWithdrawal(ctx context.Context, userID, withdrawalID string) error {
	return l.resolveWithdrawal(ctx, userID, withdrawalID, func(w *domain.Withdrawal, acc *account) {
		w.Status = domain.WithdrawalFailed
		w.ResolvedAt = l.now()
		acc.Balance += w.Amount
	})
}

// Withdraw runs the full two-phase flow against the transfer executor. The
// ledger never reports a withdrawal done before the transfer is confirmed.
func (l *Ledger) Withdraw(ctx context.Context, userID, destination string, amount float64) (string, error) {
	if l.transfer == nil {
		return "", fmt.Errorf("ledger.Withdraw: no transfer executor configured")
	}

	id, err := l.RequestWithdrawal(ctx, userID, destination, amount)
	if err != nil {
		return "", err
	}

	txRef, err := l.transfer.SendFunds(ctx, destination, amount)
	if err != nil {
		if cerr := l.CancelWithdrawal(ctx, userID, id); cerr != nil {
			slog.Error("ledger: failed to cancel withdrawal after transfer error",
				"user", userID, "withdrawal", id, "err", cerr)
		}
		return "", fmt.Errorf("ledger.Withdraw: transfer failed: %w", err)
	}

	if err := l.CompleteWithdrawal(ctx, userID, id, txRef); err != nil {
		return "", err
	}
	slog.Info("ledger: withdrawal completed", "user", userID, "amount", amount, "txRef", txRef)
	return id, nil
}

func (l *Ledger) resolveWithdrawal(ctx context.Context, userID, withdrawalID string, apply func(*domain.Withdrawal, *account)) error {
	acc := l.getOrCreate(userID)

	acc.mu.Lock()
	var found *domain.Withdrawal
	for i := range acc.Withdrawals {
		if acc.Withdrawals[i].ID == withdrawalID {
			found = &acc.Withdrawals[i]
			break
		}
	}
	if found == nil || found.Status != domain.WithdrawalPending {
		acc.mu.Unlock()
		return fmt.Errorf("ledger: withdrawal %s not pending for user %s", withdrawalID, userID)
	}
	apply(found, acc)
	snap := snapshot(acc)
	acc.mu.Unlock()

	l.persist(ctx, snap)
	return nil
}
