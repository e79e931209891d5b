package ledgerbridge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateOpenRefCounted(t *testing.T) {
	wallet := &fakeWallet{}
	gate := fastGate(t, wallet, &fakeLedger{})

	require.NoError(t, gate.Open())
	require.NoError(t, gate.Open())
	wallet.mu.Lock()
	assert.Equal(t, 1, wallet.openCount)
	wallet.mu.Unlock()

	// One holder remains, so the wallet stays open.
	gate.Close()
	wallet.mu.Lock()
	assert.Equal(t, 0, wallet.closeCount)
	wallet.mu.Unlock()

	gate.Close()
	assert.Equal(t, 1, wallet.closeCount)

	// Close on a closed gate is a no-op.
	gate.Close()
	assert.Equal(t, 1, wallet.closeCount)
}

func TestGateBlockIngestionTick(t *testing.T) {
	wallet := &fakeWallet{}
	gate := fastGate(t, wallet, &fakeLedger{})

	require.NoError(t, gate.Open())
	time.Sleep(20 * time.Millisecond)
	gate.Close()

	wallet.mu.Lock()
	defer wallet.mu.Unlock()
	assert.Greater(t, wallet.processed, 0)
}

func TestWaitUntilSyncedCatchesUp(t *testing.T) {
	var calls atomic.Int64
	wallet := &fakeWallet{
		currentHeight: func() (uint64, error) {
			if calls.Add(1) < 3 {
				return 50, nil
			}
			return 100, nil
		},
	}
	gate := fastGate(t, wallet, &fakeLedger{})

	require.NoError(t, gate.WaitUntilSynced(context.Background()))
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
}

func TestWaitUntilSyncedAlreadySynced(t *testing.T) {
	gate := fastGate(t, &fakeWallet{}, &fakeLedger{})
	require.NoError(t, gate.WaitUntilSynced(context.Background()))
}

// An empty ledger has nothing to sync against.
func TestWaitUntilSyncedEmptyLedger(t *testing.T) {
	ledger := &fakeLedger{currentHeight: func(context.Context) (uint64, error) { return 0, nil }}
	wallet := &fakeWallet{currentHeight: func() (uint64, error) { return 0, nil }}
	gate := fastGate(t, wallet, ledger)

	require.NoError(t, gate.WaitUntilSynced(context.Background()))
}

func TestWaitUntilSyncedCeiling(t *testing.T) {
	wallet := &fakeWallet{currentHeight: func() (uint64, error) { return 10, nil }}
	gate := fastGate(t, wallet, &fakeLedger{}, WithSyncCeiling(10*time.Millisecond))

	err := gate.WaitUntilSynced(context.Background())
	assert.ErrorIs(t, err, ErrSyncWaitTimeout)
}

func TestWaitUntilSyncedContextCancel(t *testing.T) {
	wallet := &fakeWallet{currentHeight: func() (uint64, error) { return 10, nil }}
	gate := fastGate(t, wallet, &fakeLedger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gate.WaitUntilSynced(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHasFundsFunded(t *testing.T) {
	wallet := &fakeWallet{}
	gate := fastGate(t, wallet, &fakeLedger{})

	funded, err := gate.HasFunds(context.Background())
	require.NoError(t, err)
	assert.True(t, funded)
	assert.Equal(t, 0, wallet.rebuilds)
}

// No fee asset triggers a rebuild, and the attempt still reports no funds
// so the queue retries it after the rescan.
func TestHasFundsTriggersRebuild(t *testing.T) {
	wallet := &fakeWallet{balancesSeq: [][]AssetBalance{
		{{Asset: "GAS", Amount: 0}},
		{{Asset: "GAS", Amount: 5}},
	}}
	gate := fastGate(t, wallet, &fakeLedger{})

	funded, err := gate.HasFunds(context.Background())
	require.NoError(t, err)
	assert.False(t, funded)
	assert.Equal(t, 1, wallet.rebuilds)
}

func TestHasFundsWrongAsset(t *testing.T) {
	wallet := &fakeWallet{balancesSeq: [][]AssetBalance{
		{{Asset: "NEO", Amount: 100}},
		{{Asset: "NEO", Amount: 100}},
	}}
	gate := fastGate(t, wallet, &fakeLedger{})

	funded, err := gate.HasFunds(context.Background())
	require.NoError(t, err)
	assert.False(t, funded)
	assert.Equal(t, 1, wallet.rebuilds)
}

func TestHasFundsCustomFeeAsset(t *testing.T) {
	wallet := &fakeWallet{balances: func() ([]AssetBalance, error) {
		return []AssetBalance{{Asset: "ETH", Amount: 3}}, nil
	}}
	gate := fastGate(t, wallet, &fakeLedger{}, WithFeeAsset("ETH"))

	funded, err := gate.HasFunds(context.Background())
	require.NoError(t, err)
	assert.True(t, funded)
}

func TestClaimFeesCyclesWallet(t *testing.T) {
	wallet := &fakeWallet{}
	gate := fastGate(t, wallet, &fakeLedger{})

	require.NoError(t, gate.ClaimFees(context.Background()))
	assert.Equal(t, 1, wallet.claims)
	assert.Equal(t, 1, wallet.openCount)
	assert.Equal(t, 1, wallet.closeCount)
}

// ClaimFees while a worker holds the gate must not close the wallet the
// worker is still signing with.
func TestClaimFeesKeepsHeldWalletOpen(t *testing.T) {
	wallet := &fakeWallet{}
	gate := fastGate(t, wallet, &fakeLedger{})

	require.NoError(t, gate.Open())
	require.NoError(t, gate.ClaimFees(context.Background()))

	wallet.mu.Lock()
	assert.Equal(t, 1, wallet.claims)
	assert.Equal(t, 0, wallet.closeCount)
	wallet.mu.Unlock()

	gate.Close()
	assert.Equal(t, 1, wallet.closeCount)
}
