package onchain

// Deposit verification against the chain. A deposit claim is a transaction
// hash; we confirm the transaction succeeded and contains an ERC-20 Transfer
// of the collateral token to our treasury address, and report the actual
// amount moved. Tolerance matching against the claimed amount is the
// ledger's job.

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/zonebet/engine/internal/domain"
)

// USDC uses 6 decimals on every chain we support.
const usdcDecimals = 1e6

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Verifier implements ports.ChainVerifier over an Ethereum-compatible RPC.
type Verifier struct {
	client *ethclient.Client
	token  common.Address
}

// NewVerifier connects to the RPC endpoint and watches transfers of the
// given ERC-20 collateral token.
func NewVerifier(rpcURL, tokenAddress string) (*Verifier, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewVerifier: dial %s: %w", rpcURL, err)
	}
	return &Verifier{
		client: client,
		token:  common.HexToAddress(tokenAddress),
	}, nil
}

// VerifyTransfer checks txRef on chain. Not-yet-mined and failed
// transactions report Verified=false without error; RPC failures are errors.
func (v *Verifier) VerifyTransfer(ctx context.Context, txRef string, expectedAmount float64, expectedRecipient string) (domain.TransferProof, error) {
	if !strings.HasPrefix(txRef, "0x") || len(txRef) != 66 {
		return domain.TransferProof{}, fmt.Errorf("onchain.VerifyTransfer: malformed tx hash %q", txRef)
	}

	receipt, err := v.client.TransactionReceipt(ctx, common.HexToHash(txRef))
	if err != nil {
		if err == ethereum.NotFound {
			return domain.TransferProof{Verified: false}, nil
		}
		return domain.TransferProof{}, fmt.Errorf("onchain.VerifyTransfer: receipt %s: %w", txRef, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.TransferProof{Verified: false}, nil
	}

	recipient := common.HexToAddress(expectedRecipient)
	for _, lg := range receipt.Logs {
		if lg.Address != v.token || len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
			continue
		}
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		if to != recipient {
			continue
		}
		raw := new(big.Int).SetBytes(lg.Data)
		amount, _ := new(big.Float).Quo(
			new(big.Float).SetInt(raw),
			big.NewFloat(usdcDecimals),
		).Float64()
		return domain.TransferProof{Verified: true, ActualAmount: amount}, nil
	}

	// Mined and successful but no matching transfer to us.
	return domain.TransferProof{Verified: false}, nil
}

// Close releases the RPC connection.
func (v *Verifier) Close() {
	v.client.Close()
}
