package evm

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lootmarkets/ledgerbridge"
)

var gwei = big.NewInt(1_000_000_000)

// Wallet implements ledgerbridge.WalletClient for an externally owned
// account. An EOA has no local chain database of its own, the node tracks
// state for it, so the sync machinery degenerates: ProcessBlocks and
// Rebuild have nothing to do, and the wallet height is the node height.
// The gate still drives the same lifecycle so ledger backends with real
// wallet databases slot in unchanged.
type Wallet struct {
	eth      *ethclient.Client
	address  common.Address
	feeAsset string
	logger   *slog.Logger

	mu   sync.Mutex
	open bool
}

// NewWallet wraps the operator account. feeAsset is the asset name reported
// for the account's native balance.
func NewWallet(eth *ethclient.Client, address common.Address, feeAsset string, logger *slog.Logger) *Wallet {
	return &Wallet{eth: eth, address: address, feeAsset: feeAsset, logger: logger}
}

// Open marks the wallet open. The key material lives with the Client, so
// path and passphrase are unused here.
func (w *Wallet) Open(path, passphrase string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = true
	return nil
}

func (w *Wallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = false
	return nil
}

// ProcessBlocks is a no-op: the node ingests blocks for us.
func (w *Wallet) ProcessBlocks() error { return nil }

// SyncedBalances reports the account's native balance, in gwei, under the
// configured fee-asset name.
func (w *Wallet) SyncedBalances() ([]ledgerbridge.AssetBalance, error) {
	balance, err := w.eth.BalanceAt(context.Background(), w.address, nil)
	if err != nil {
		return nil, err
	}
	return []ledgerbridge.AssetBalance{
		{Asset: w.feeAsset, Amount: new(big.Int).Div(balance, gwei).Uint64()},
	}, nil
}

// Rebuild is a no-op: there is no local view to rescan.
func (w *Wallet) Rebuild() error {
	w.logger.Info("rebuild requested; EOA wallet has no local view to rescan")
	return nil
}

func (w *Wallet) CurrentHeight() (uint64, error) {
	return w.eth.BlockNumber(context.Background())
}

// ClaimFees is a no-op: this chain has no claimable-fee model. The
// administrative endpoint stays wired so ledgers that do (the contract was
// originally deployed on one) work without ingress changes.
func (w *Wallet) ClaimFees(ctx context.Context) error {
	w.logger.Info("claim fees requested; chain has no claimable fee asset")
	return nil
}
