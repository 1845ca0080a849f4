package ledger

// Per-user balance and transaction history, independent of the venue's own
// accounting.
//
// Concurrency model:
//   - a registry mutex guards the account map and the system-wide deposit
//     txRef index (replay protection must be global, not per account)
//   - each account carries its own mutex; concurrent operations on the same
//     account serialize, different accounts proceed in parallel
//
// Persistence is a snapshot per mutated account through ports.LedgerStore.
// A failed snapshot write never reverses an applied mutation — the in-memory
// ledger is authoritative, storage is recovery state.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zonebet/engine/internal/domain"
	"github.com/zonebet/engine/internal/ports"
)

// DepositTolerance is the allowed relative gap between the claimed deposit
// amount and the chain-verified amount.
const DepositTolerance = 0.01

type account struct {
	mu sync.Mutex
	domain.Account
}

// Ledger is the trusted balance store. Construct with New; the verifier and
// transfer executor may be nil when only the primitive operations are used.
type Ledger struct {
	store    ports.LedgerStore
	verifier ports.ChainVerifier
	transfer ports.TransferExecutor

	mu       sync.Mutex
	accounts map[string]*account
	txRefs   map[string]bool // every deposit txRef ever credited, any account

	now func() time.Time
}

// New creates an empty ledger. Any collaborator may be nil: a nil store
// disables persistence, a nil verifier/transfer disables the corresponding
// high-level flow.
func New(store ports.LedgerStore, verifier ports.ChainVerifier, transfer ports.TransferExecutor) *Ledger {
	return &Ledger{
		store:    store,
		verifier: verifier,
		transfer: transfer,
		accounts: make(map[string]*account),
		txRefs:   make(map[string]bool),
		now:      time.Now,
	}
}

// Load restores previously persisted accounts and rebuilds the deposit
// replay index. Call once before serving operations.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	saved, err := l.store.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("ledger.Load: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for userID, acc := range saved {
		l.accounts[userID] = &account{Account: acc}
		for _, dep := range acc.Deposits {
			l.txRefs[dep.TxRef] = true
		}
	}
	slog.Info("ledger: restored accounts", "count", len(saved))
	return nil
}

// GetOrCreate returns a snapshot of the user's account, creating an empty
// one on first reference.
func (l *Ledger) GetOrCreate(userID string) domain.Account {
	acc := l.getOrCreate(userID)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return snapshot(acc)
}

// CreditVerifiedDeposit credits an already chain-verified deposit. The
// amount credited is always verifiedAmount — what actually arrived on
// chain — never the user's claim.
// Fails with ErrDuplicateDeposit when txRef was credited before (any
// account), and with ErrAmountMismatch when the claimed amount differs from
// the verified amount by more than DepositTolerance.
func (l *Ledger) CreditVerifiedDeposit(ctx context.Context, userID, txRef string, amount, verifiedAmount float64) error {
	if verifiedAmount <= 0 || math.Abs(amount-verifiedAmount) > verifiedAmount*DepositTolerance {
		return fmt.Errorf("ledger.CreditVerifiedDeposit: claimed %.6f vs verified %.6f: %w",
			amount, verifiedAmount, domain.ErrAmountMismatch)
	}

	// Reserve the txRef system-wide before touching the account.
	l.mu.Lock()
	if l.txRefs[txRef] {
		l.mu.Unlock()
		return fmt.Errorf("ledger.CreditVerifiedDeposit: txRef %s: %w", txRef, domain.ErrDuplicateDeposit)
	}
	l.txRefs[txRef] = true
	acc := l.lockedGetOrCreate(userID)
	l.mu.Unlock()

	acc.mu.Lock()
	acc.Balance += verifiedAmount
	acc.TotalDeposits += verifiedAmount
	acc.Deposits = append(acc.Deposits, domain.Deposit{
		TxRef:      txRef,
		Amount:     verifiedAmount,
		Verified:   true,
		VerifiedAt: l.now(),
	})
	snap := snapshot(acc)
	acc.mu.Unlock()

	l.persist(ctx, snap)
	return nil
}

// DebitForBet optimistically debits the collateral before the venue open and
// returns the bet record id. Fails with ErrInsufficientBalance.
func (l *Ledger) DebitForBet(ctx context.Context, userID string, amount float64) (string, error) {
	acc := l.getOrCreate(userID)

	acc.mu.Lock()
	if acc.Balance < amount {
		acc.mu.Unlock()
		return "", fmt.Errorf("ledger.DebitForBet: need %.2f have %.2f: %w",
			amount, acc.Balance, domain.ErrInsufficientBalance)
	}
	betID := uuid.New().String()
	acc.Balance -= amount
	acc.TotalBetVolume += amount
	acc.Bets = append(acc.Bets, domain.BetRecord{
		ID:       betID,
		Amount:   amount,
		PlacedAt: l.now(),
	})
	snap := snapshot(acc)
	acc.mu.Unlock()

	l.persist(ctx, snap)
	return betID, nil
}

// CreditRefund compensates a failed venue open: restores the debited
// collateral and reverses the bet volume counter. Not a rollback — the bet
// record stays, marked refunded.
func (l *Ledger) CreditRefund(ctx context.Context, userID, betID string, amount float64) error {
	acc := l.getOrCreate(userID)

	acc.mu.Lock()
	acc.Balance += amount
	acc.TotalBetVolume -= amount
	for i := range acc.Bets {
		if acc.Bets[i].ID == betID {
			acc.Bets[i].Refunded = true
			break
		}
	}
	snap := snapshot(acc)
	acc.mu.Unlock()

	l.persist(ctx, snap)
	return nil
}

// SettleWin credits principal plus pnl for a won position. The caller (the
// settlement pipeline) guarantees at most one call per position via the
// position's settled flag.
func (l *Ledger) SettleWin(ctx context.Context, userID, positionID string, principal, pnl float64) error {
	acc := l.getOrCreate(userID)

	acc.mu.Lock()
	acc.Balance += principal + pnl
	acc.TotalWinnings += pnl
	snap := snapshot(acc)
	acc.mu.Unlock()

	slog.Debug("ledger: settled win", "user", userID, "position", positionID,
		"principal", principal, "pnl", pnl)
	l.persist(ctx, snap)
	return nil
}

// TotalBalances sums every account balance. Used by reconciliation.
func (l *Ledger) TotalBalances() float64 {
	l.mu.Lock()
	accs := make([]*account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		accs = append(accs, acc)
	}
	l.mu.Unlock()

	total := 0.0
	for _, acc := range accs {
		acc.mu.Lock()
		total += acc.Balance
		acc.mu.Unlock()
	}
	return total
}

// Accounts returns snapshots of every account, ordered by user id.
func (l *Ledger) Accounts() []domain.Account {
	l.mu.Lock()
	accs := make([]*account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		accs = append(accs, acc)
	}
	l.mu.Unlock()

	out := make([]domain.Account, 0, len(accs))
	for _, acc := range accs {
		acc.mu.Lock()
		out = append(out, snapshot(acc))
		acc.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (l *Ledger) getOrCreate(userID string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lockedGetOrCreate(userID)
}

// lockedGetOrCreate requires l.mu held.
func (l *Ledger) lockedGetOrCreate(userID string) *account {
	if acc, ok := l.accounts[userID]; ok {
		return acc
	}
	acc := &account{Account: domain.Account{UserID: userID}}
	l.accounts[userID] = acc
	return acc
}

func (l *Ledger) persist(ctx context.Context, snap domain.Account) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveAccount(ctx, snap); err != nil {
		slog.Warn("ledger: error persisting account snapshot", "user", snap.UserID, "err", err)
	}
}

// snapshot copies the account value with deep-copied history slices.
// Caller must hold acc.mu.
func snapshot(acc *account) domain.Account {
	out := acc.Account
	out.Deposits = append([]domain.Deposit(nil), acc.Deposits...)
	out.Withdrawals = append([]domain.Withdrawal(nil), acc.Withdrawals...)
	out.Bets = append([]domain.BetRecord(nil), acc.Bets...)
	return out
}
