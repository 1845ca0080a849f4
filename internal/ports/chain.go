package ports

import (
	"context"

	"github.com/zonebet/engine/internal/domain"
)

// ChainVerifier confirms that a claimed deposit transaction actually moved
// funds to our address. Tolerance-based amount matching is the ledger's
// responsibility, not the verifier's — the verifier only reports what the
// chain says happened.
type ChainVerifier interface {
	VerifyTransfer(ctx context.Context, txRef string, expectedAmount float64, expectedRecipient string) (domain.TransferProof, error)
}

// TransferExecutor submits an outgoing transfer for a withdrawal and returns
// the external transaction reference.
type TransferExecutor interface {
	SendFunds(ctx context.Context, destination string, amount float64) (string, error)
}
