package onchain

// Withdrawal payout executor: signs and submits an ERC-20 transfer of the
// collateral token from the treasury wallet. The returned tx hash becomes
// the withdrawal's txRef in the ledger.

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const transferGasLimit = uint64(80_000)

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "transfer",
			"type": "function",
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// Payer implements ports.TransferExecutor over an Ethereum-compatible RPC.
type Payer struct {
	client     *ethclient.Client
	token      common.Address
	privateKey *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
}

// NewPayer connects to the RPC endpoint and prepares the treasury signer.
func NewPayer(rpcURL, tokenAddress, privateKeyHex string) (*Payer, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewPayer: dial %s: %w", rpcURL, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("onchain.NewPayer: invalid private key: %w", err)
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("onchain.NewPayer: chain id: %w", err)
	}

	return &Payer{
		client:     client,
		token:      common.HexToAddress(tokenAddress),
		privateKey: key,
		from:       crypto.PubkeyToAddress(key.PublicKey),
		chainID:    chainID,
	}, nil
}

// SendFunds submits an ERC-20 transfer of amount to destination and returns
// the transaction hash once accepted by the node.
func (p *Payer) SendFunds(ctx context.Context, destination string, amount float64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("onchain.SendFunds: non-positive amount %.6f", amount)
	}

	units := new(big.Int)
	new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(usdcDecimals)).Int(units)

	data, err := erc20ABI.Pack("transfer", common.HexToAddress(destination), units)
	if err != nil {
		return "", fmt.Errorf("onchain.SendFunds: pack transfer: %w", err)
	}

	nonce, err := p.client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return "", fmt.Errorf("onchain.SendFunds: nonce: %w", err)
	}
	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("onchain.SendFunds: gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, p.token, big.NewInt(0), transferGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(p.chainID), p.privateKey)
	if err != nil {
		return "", fmt.Errorf("onchain.SendFunds: sign: %w", err)
	}

	if err := p.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("onchain.SendFunds: submit: %w", err)
	}

	hash := signed.Hash().Hex()
	slog.Info("onchain: withdrawal submitted", "to", destination, "amount", amount, "tx", hash)
	return hash, nil
}

// Close releases the RPC connection.
func (p *Payer) Close() {
	p.client.Close()
}
