package ports

import (
	"context"

	"github.com/zonebet/engine/internal/domain"
)

// LedgerStore persists the account map. Storage is plain keyed read/write;
// the ledger service owns atomicity and serialization above it.
type LedgerStore interface {
	// SaveAccount writes one account snapshot, replacing any previous state
	// for that user.
	SaveAccount(ctx context.Context, account domain.Account) error

	// LoadAccounts reads every persisted account, keyed by user id.
	LoadAccounts(ctx context.Context) (map[string]domain.Account, error)

	// Close releases the underlying storage cleanly.
	Close() error
}
