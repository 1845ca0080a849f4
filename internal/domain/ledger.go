package domain

import "time"

// WithdrawalStatus tracks the two-phase withdrawal lifecycle.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalFailed    WithdrawalStatus = "FAILED"
)

// Account is the per-user ledger: balance plus full transaction history.
// Balance is always >= 0; every mutation goes through the ledger service,
// which serializes operations per account.
type Account struct {
	UserID string

	Balance          float64
	TotalDeposits    float64
	TotalWithdrawals float64
	TotalBetVolume   float64
	TotalWinnings    float64

	Deposits    []Deposit
	Withdrawals []Withdrawal
	Bets        []BetRecord
}

// Deposit is a credited on-chain transfer. TxRef is the external transaction
// id and may be credited at most once system-wide.
type Deposit struct {
	TxRef      string
	Amount     float64
	Verified   bool
	VerifiedAt time.Time
}

// Withdrawal is a requested transfer out. The balance is debited while
// PENDING; a failed external transfer re-credits it and marks FAILED.
type Withdrawal struct {
	ID          string
	TxRef       string // set once the external transfer is submitted
	Destination string
	Amount      float64
	Status      WithdrawalStatus
	RequestedAt time.Time
	ResolvedAt  time.Time
}

// BetRecord is the ledger-side trace of a bet debit. Refunded marks the
// compensating credit applied when the venue open failed.
type BetRecord struct {
	ID       string
	Amount   float64
	PlacedAt time.Time
	Refunded bool
}

// VenueBalance is the custodial collateral reported by the external venue.
type VenueBalance struct {
	Total float64
	Free  float64
}

// TransferProof is the chain verifier's answer for a deposit transaction.
type TransferProof struct {
	Verified     bool
	ActualAmount float64
}
