package ledgerbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultBlockTick    = time.Second
	defaultSyncPoll     = 5 * time.Second
	defaultRebuildPoll  = 10 * time.Second
	syncedRatio         = 0.99
	defaultFeeAssetName = "GAS"
)

// WalletSyncGate owns the signing wallet's lifecycle and stands between the
// submitter and the ledger: no write is attempted until the wallet is open,
// synced to current ledger height, and holding the fee asset.
type WalletSyncGate struct {
	wallet     WalletClient
	ledger     LedgerClient
	walletPath string
	walletPass string
	logger     *slog.Logger

	blockTick   time.Duration
	syncPoll    time.Duration
	rebuildPoll time.Duration
	feeAsset    string

	// syncCeiling bounds WaitUntilSynced. Zero keeps the historical
	// unbounded wait, which is tolerable only because a single worker
	// drives the gate.
	syncCeiling time.Duration

	// holds counts concurrent Open/Close pairs. The wallet really opens on
	// the first hold and closes when the last holder releases, so ClaimFees
	// cannot yank the handle out from under a worker mid-submission.
	mu       sync.Mutex
	holds    int
	stopTick chan struct{}
	tickDone chan struct{}
}

// GateOption configures the gate.
type GateOption func(*WalletSyncGate)

// WithFeeAsset sets the asset name checked by HasFunds.
func WithFeeAsset(asset string) GateOption {
	return func(g *WalletSyncGate) {
		g.feeAsset = asset
	}
}

// WithSyncCeiling bounds the sync wait; exceeding it yields
// ErrSyncWaitTimeout. Zero means wait forever.
func WithSyncCeiling(ceiling time.Duration) GateOption {
	return func(g *WalletSyncGate) {
		g.syncCeiling = ceiling
	}
}

// WithGateIntervals overrides the block-ingestion tick and the sync and
// rebuild poll intervals.
func WithGateIntervals(blockTick, syncPoll, rebuildPoll time.Duration) GateOption {
	return func(g *WalletSyncGate) {
		g.blockTick = blockTick
		g.syncPoll = syncPoll
		g.rebuildPoll = rebuildPoll
	}
}

func NewWalletSyncGate(wallet WalletClient, ledger LedgerClient, walletPath, walletPass string, logger *slog.Logger, opts ...GateOption) *WalletSyncGate {
	g := &WalletSyncGate{
		wallet:      wallet,
		ledger:      ledger,
		walletPath:  walletPath,
		walletPass:  walletPass,
		logger:      logger,
		blockTick:   defaultBlockTick,
		syncPoll:    defaultSyncPoll,
		rebuildPoll: defaultRebuildPoll,
		feeAsset:    defaultFeeAssetName,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open takes a hold on the wallet. The first hold opens it and starts the
// block-ingestion tick that keeps its local balance and height view
// current; later holds just join.
func (g *WalletSyncGate) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holds > 0 {
		g.holds++
		return nil
	}
	if err := g.wallet.Open(g.walletPath, g.walletPass); err != nil {
		return NewGateError(ErrCodeWalletUnsynced, "open wallet", err)
	}
	g.stopTick = make(chan struct{})
	g.tickDone = make(chan struct{})
	go g.ingestBlocks(g.stopTick, g.tickDone)
	g.holds = 1
	return nil
}

// Close releases one hold; the last release stops the tick and closes the
// wallet. Safe to call when the gate is not open.
func (g *WalletSyncGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holds == 0 {
		return
	}
	g.holds--
	if g.holds > 0 {
		return
	}
	close(g.stopTick)
	<-g.tickDone
	if err := g.wallet.Close(); err != nil {
		g.logger.Warn("closing wallet", "error", err)
	}
}

func (g *WalletSyncGate) ingestBlocks(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(g.blockTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := g.wallet.ProcessBlocks(); err != nil {
				g.logger.Warn("block ingestion tick failed", "error", err)
			}
		}
	}
}

// WaitUntilSynced blocks until the wallet's height has caught up to the
// ledger's (ratio > 0.99). With no ceiling configured this can wait
// forever.
func (g *WalletSyncGate) WaitUntilSynced(ctx context.Context) error {
	start := time.Now()
	for {
		synced, err := g.checkSynced(ctx)
		if err != nil {
			return err
		}
		if synced {
			return nil
		}
		if g.syncCeiling > 0 && time.Since(start) >= g.syncCeiling {
			// Wrapped so the queue still treats a slow wallet as retryable.
			return NewGateError(ErrCodeWalletUnsynced, "sync wait exceeded ceiling", ErrSyncWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.syncPoll):
		}
	}
}

func (g *WalletSyncGate) checkSynced(ctx context.Context) (bool, error) {
	ledgerHeight, err := g.ledger.CurrentHeight(ctx)
	if err != nil {
		return false, NewGateError(ErrCodeWalletUnsynced, "query ledger height", err)
	}
	if ledgerHeight == 0 {
		return true, nil
	}
	walletHeight, err := g.wallet.CurrentHeight()
	if err != nil {
		return false, NewGateError(ErrCodeWalletUnsynced, "query wallet height", err)
	}
	ratio := float64(walletHeight) / float64(ledgerHeight)
	if ratio > syncedRatio {
		return true, nil
	}
	g.logger.Info("waiting for wallet sync",
		"walletHeight", walletHeight,
		"ledgerHeight", ledgerHeight,
		"synced", fmt.Sprintf("%.0f%%", ratio*100))
	return false, nil
}

// HasFunds reports whether the synced balance set contains the fee asset
// with a positive amount. When it does not, the gate kicks off a full
// wallet rebuild, blocks until the rescan has produced at least one synced
// balance, and still reports no funds: the current attempt must fail and
// retry once the rebuild has caught up.
func (g *WalletSyncGate) HasFunds(ctx context.Context) (bool, error) {
	balances, err := g.wallet.SyncedBalances()
	if err != nil {
		return false, NewGateError(ErrCodeInsufficientFunds, "query synced balances", err)
	}
	for _, balance := range balances {
		g.logger.Info("wallet balance", "asset", balance.Asset, "amount", balance.Amount)
		if balance.Asset == g.feeAsset && balance.Amount > 0 {
			return true, nil
		}
	}

	g.logger.Error("wallet holds no fee asset, rebuilding", "feeAsset", g.feeAsset)
	if err := g.wallet.Rebuild(); err != nil {
		return false, NewGateError(ErrCodeInsufficientFunds, "rebuild wallet", err)
	}
	for {
		balances, err = g.wallet.SyncedBalances()
		if err != nil {
			return false, NewGateError(ErrCodeInsufficientFunds, "query balances during rebuild", err)
		}
		if len(balances) > 0 {
			break
		}
		g.logger.Info("rebuilding wallet, waiting for first synced balance")
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(g.rebuildPoll):
		}
	}
	g.logger.Info("wallet rebuild produced synced balances, failing attempt for retry")
	return false, nil
}

// ClaimFees claims accumulated fees under its own hold on the wallet, so
// running it alongside the write path never closes the handle a worker is
// still signing with.
func (g *WalletSyncGate) ClaimFees(ctx context.Context) error {
	if err := g.Open(); err != nil {
		return err
	}
	defer g.Close()
	if err := g.wallet.ClaimFees(ctx); err != nil {
		return fmt.Errorf("claim fees: %w", err)
	}
	return nil
}
