package ledgerbridge

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// Shared fakes for the core tests. Struct-with-func-fields so each test
// overrides only what it cares about.

type fakeLedger struct {
	mu        sync.Mutex
	submitted []string

	testInvoke     func(ctx context.Context, call ContractCall) (*InvokeResult, error)
	submit         func(ctx context.Context, result *InvokeResult) (string, error)
	getTransaction func(ctx context.Context, txID string) (bool, uint64, error)
	currentHeight  func(ctx context.Context) (uint64, error)
	headerHeight   func(ctx context.Context) (uint64, error)
}

func (f *fakeLedger) TestInvoke(ctx context.Context, call ContractCall) (*InvokeResult, error) {
	if f.testInvoke != nil {
		return f.testInvoke(ctx, call)
	}
	return &InvokeResult{Script: []byte("script"), Fee: 1}, nil
}

func (f *fakeLedger) Submit(ctx context.Context, result *InvokeResult) (string, error) {
	txID := "0xtx1"
	if f.submit != nil {
		id, err := f.submit(ctx, result)
		if err != nil {
			return "", err
		}
		txID = id
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, txID)
	f.mu.Unlock()
	return txID, nil
}

func (f *fakeLedger) GetTransaction(ctx context.Context, txID string) (bool, uint64, error) {
	if f.getTransaction != nil {
		return f.getTransaction(ctx, txID)
	}
	return true, 42, nil
}

func (f *fakeLedger) CurrentHeight(ctx context.Context) (uint64, error) {
	if f.currentHeight != nil {
		return f.currentHeight(ctx)
	}
	return 100, nil
}

func (f *fakeLedger) HeaderHeight(ctx context.Context) (uint64, error) {
	if f.headerHeight != nil {
		return f.headerHeight(ctx)
	}
	return 100, nil
}

func (f *fakeLedger) submissions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.submitted))
	copy(out, f.submitted)
	return out
}

type fakeWallet struct {
	mu          sync.Mutex
	openCount   int
	closeCount  int
	rebuilds    int
	claims      int
	processed   int
	balancesSeq [][]AssetBalance

	balances      func() ([]AssetBalance, error)
	rebuild       func() error
	currentHeight func() (uint64, error)
}

func (f *fakeWallet) Open(path, passphrase string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCount++
	return nil
}

func (f *fakeWallet) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount++
	return nil
}

func (f *fakeWallet) ProcessBlocks() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed++
	return nil
}

// SyncedBalances returns, in order: the explicit func if set, the next
// element of balancesSeq if any remain, else a funded default.
func (f *fakeWallet) SyncedBalances() ([]AssetBalance, error) {
	if f.balances != nil {
		return f.balances()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.balancesSeq) > 0 {
		next := f.balancesSeq[0]
		f.balancesSeq = f.balancesSeq[1:]
		return next, nil
	}
	return []AssetBalance{{Asset: "GAS", Amount: 10}}, nil
}

func (f *fakeWallet) Rebuild() error {
	f.mu.Lock()
	f.rebuilds++
	f.mu.Unlock()
	if f.rebuild != nil {
		return f.rebuild()
	}
	return nil
}

func (f *fakeWallet) CurrentHeight() (uint64, error) {
	if f.currentHeight != nil {
		return f.currentHeight()
	}
	return 100, nil
}

func (f *fakeWallet) ClaimFees(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	return nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// fastGate builds a gate with millisecond intervals over the fakes.
func fastGate(t *testing.T, wallet WalletClient, ledger LedgerClient, opts ...GateOption) *WalletSyncGate {
	t.Helper()
	base := []GateOption{WithGateIntervals(time.Millisecond, time.Millisecond, time.Millisecond)}
	return NewWalletSyncGate(wallet, ledger, "wallet.db", "passphrase", testLogger(t), append(base, opts...)...)
}
