package domain

import "errors"

// Ledger and placement failures. All are returned synchronously to the
// caller; nothing in the core panics or crashes the process on these.
var (
	// ErrInsufficientBalance rejects a bet or withdrawal larger than the
	// account's current balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateDeposit rejects a txRef that was already credited to any
	// account (deposit replay).
	ErrDuplicateDeposit = errors.New("duplicate deposit")

	// ErrAmountMismatch rejects a deposit whose claimed amount differs from
	// the chain-verified amount beyond the tolerance.
	ErrAmountMismatch = errors.New("deposit amount mismatch")

	// ErrTradeExecution marks a failed venue open. The bet debit is fully
	// refunded before this is returned.
	ErrTradeExecution = errors.New("trade execution failed")

	// ErrUnknownPosition is returned for operations on a position id the
	// store has never seen.
	ErrUnknownPosition = errors.New("unknown position")
)
