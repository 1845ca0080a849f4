package storage

// SQLite-backed ledger store. The ledger service hands us full account
// snapshots; each save replaces the account row and its history rows inside
// one transaction, so a crash never leaves a half-written account behind.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zonebet/engine/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    user_id           TEXT PRIMARY KEY,
    balance           REAL NOT NULL DEFAULT 0,
    total_deposits    REAL NOT NULL DEFAULT 0,
    total_withdrawals REAL NOT NULL DEFAULT 0,
    total_bet_volume  REAL NOT NULL DEFAULT 0,
    total_winnings    REAL NOT NULL DEFAULT 0,
    updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS deposits (
    tx_ref      TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    amount      REAL NOT NULL,
    verified    INTEGER NOT NULL DEFAULT 0,
    verified_at DATETIME
);

CREATE TABLE IF NOT EXISTS withdrawals (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    tx_ref       TEXT,
    destination  TEXT,
    amount       REAL NOT NULL,
    status       TEXT NOT NULL,
    requested_at DATETIME NOT NULL,
    resolved_at  DATETIME
);

CREATE TABLE IF NOT EXISTS bets (
    id        TEXT PRIMARY KEY,
    user_id   TEXT NOT NULL,
    amount    REAL NOT NULL,
    placed_at DATETIME NOT NULL,
    refunded  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_deposits_user    ON deposits(user_id);
CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals(user_id);
CREATE INDEX IF NOT EXISTS idx_bets_user        ON bets(user_id);
`

// SQLiteStore implements ports.LedgerStore on SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and
// applies the schema. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	// A single connection sidesteps SQLite writer contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveAccount replaces the account row and its history rows atomically.
func (s *SQLiteStore) SaveAccount(ctx context.Context, acc domain.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveAccount: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, balance, total_deposits, total_withdrawals, total_bet_volume, total_winnings, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance = excluded.balance,
			total_deposits = excluded.total_deposits,
			total_withdrawals = excluded.total_withdrawals,
			total_bet_volume = excluded.total_bet_volume,
			total_winnings = excluded.total_winnings,
			updated_at = excluded.updated_at`,
		acc.UserID, acc.Balance, acc.TotalDeposits, acc.TotalWithdrawals,
		acc.TotalBetVolume, acc.TotalWinnings, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveAccount: upsert account: %w", err)
	}

	for _, table := range []string{"deposits", "withdrawals", "bets"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ?", acc.UserID); err != nil {
			return fmt.Errorf("storage.SaveAccount: clear %s: %w", table, err)
		}
	}

	for _, d := range acc.Deposits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO deposits (tx_ref, user_id, amount, verified, verified_at) VALUES (?, ?, ?, ?, ?)`,
			d.TxRef, acc.UserID, d.Amount, d.Verified, d.VerifiedAt.UTC()); err != nil {
			return fmt.Errorf("storage.SaveAccount: insert deposit: %w", err)
		}
	}
	for _, w := range acc.Withdrawals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO withdrawals (id, user_id, tx_ref, destination, amount, status, requested_at, resolved_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, acc.UserID, w.TxRef, w.Destination, w.Amount, string(w.Status),
			w.RequestedAt.UTC(), w.ResolvedAt.UTC()); err != nil {
			return fmt.Errorf("storage.SaveAccount: insert withdrawal: %w", err)
		}
	}
	for _, b := range acc.Bets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bets (id, user_id, amount, placed_at, refunded) VALUES (?, ?, ?, ?, ?)`,
			b.ID, acc.UserID, b.Amount, b.PlacedAt.UTC(), b.Refunded); err != nil {
			return fmt.Errorf("storage.SaveAccount: insert bet: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveAccount: commit: %w", err)
	}
	return nil
}

// LoadAccounts reads every persisted account with its full history.
func (s *SQLiteStore) LoadAccounts(ctx context.Context) (map[string]domain.Account, error) {
	accounts := make(map[string]domain.Account)

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, balance, total_deposits, total_withdrawals, total_bet_volume, total_winnings
		FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadAccounts: accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(&acc.UserID, &acc.Balance, &acc.TotalDeposits,
			&acc.TotalWithdrawals, &acc.TotalBetVolume, &acc.TotalWinnings); err != nil {
			return nil, fmt.Errorf("storage.LoadAccounts: scan account: %w", err)
		}
		accounts[acc.UserID] = acc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.LoadAccounts: %w", err)
	}

	if err := s.loadDeposits(ctx, accounts); err != nil {
		return nil, err
	}
	if err := s.loadWithdrawals(ctx, accounts); err != nil {
		return nil, err
	}
	if err := s.loadBets(ctx, accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *SQLiteStore) loadDeposits(ctx context.Context, accounts map[string]domain.Account) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, tx_ref, amount, verified, verified_at FROM deposits ORDER BY verified_at`)
	if err != nil {
		return fmt.Errorf("storage.LoadAccounts: deposits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID string
			d      domain.Deposit
		)
		if err := rows.Scan(&userID, &d.TxRef, &d.Amount, &d.Verified, &d.VerifiedAt); err != nil {
			return fmt.Errorf("storage.LoadAccounts: scan deposit: %w", err)
		}
		if acc, ok := accounts[userID]; ok {
			acc.Deposits = append(acc.Deposits, d)
			accounts[userID] = acc
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadWithdrawals(ctx context.Context, accounts map[string]domain.Account) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, id, tx_ref, destination, amount, status, requested_at, resolved_at
		 FROM withdrawals ORDER BY requested_at`)
	if err != nil {
		return fmt.Errorf("storage.LoadAccounts: withdrawals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID string
			w      domain.Withdrawal
			status string
		)
		if err := rows.Scan(&userID, &w.ID, &w.TxRef, &w.Destination, &w.Amount,
			&status, &w.RequestedAt, &w.ResolvedAt); err != nil {
			return fmt.Errorf("storage.LoadAccounts: scan withdrawal: %w", err)
		}
		w.Status = domain.WithdrawalStatus(status)
		if acc, ok := accounts[userID]; ok {
			acc.Withdrawals = append(acc.Withdrawals, w)
			accounts[userID] = acc
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadBets(ctx context.Context, accounts map[string]domain.Account) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, id, amount, placed_at, refunded FROM bets ORDER BY placed_at`)
	if err != nil {
		return fmt.Errorf("storage.LoadAccounts: bets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID string
			b      domain.BetRecord
		)
		if err := rows.Scan(&userID, &b.ID, &b.Amount, &b.PlacedAt, &b.Refunded); err != nil {
			return fmt.Errorf("storage.LoadAccounts: scan bet: %w", err)
		}
		if acc, ok := accounts[userID]; ok {
			acc.Bets = append(acc.Bets, b)
			accounts[userID] = acc
		}
	}
	return rows.Err()
}

// Close closes the database cleanly.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
