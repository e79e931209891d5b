package ledgerbridge

import "context"

// LedgerClient is the submit/query surface of the ledger node. Submission
// is at-least-once: a transaction handle means the network accepted the
// transaction, not that it was included in a block.
type LedgerClient interface {
	// TestInvoke dry-runs the call without mutating the ledger, returning
	// the executable script and a fee estimate. Dry runs emit the same
	// notifications as real invokes.
	TestInvoke(ctx context.Context, call ContractCall) (*InvokeResult, error)

	// Submit signs and relays the script obtained from a dry run and
	// returns the transaction id, or an error if the ledger rejected it.
	Submit(ctx context.Context, result *InvokeResult) (string, error)

	// GetTransaction reports whether the transaction has been included and
	// at which block height.
	GetTransaction(ctx context.Context, txID string) (found bool, blockHeight uint64, err error)

	CurrentHeight(ctx context.Context) (uint64, error)
	HeaderHeight(ctx context.Context) (uint64, error)
}

// WalletClient is the operator-held signing wallet. The gate owns its
// lifecycle; nothing else opens or closes it.
type WalletClient interface {
	Open(path, passphrase string) error
	Close() error

	// ProcessBlocks ingests newly arrived blocks into the wallet's local
	// view. The gate calls it on a short tick while the wallet is open.
	ProcessBlocks() error

	SyncedBalances() ([]AssetBalance, error)

	// Rebuild discards the wallet's local chain view and rescans. Used when
	// the fee asset has gone missing from the synced balance set.
	Rebuild() error

	CurrentHeight() (uint64, error)

	// ClaimFees claims accumulated network fees into the wallet.
	ClaimFees(ctx context.Context) error
}

// NotificationHandler receives the ordered payload of one ledger event,
// with the event name already stripped.
type NotificationHandler func(payload [][]byte)

// NotificationBus delivers ledger-emitted notifications, fired for every
// invoke, dry-run or real. Delivery is in-order within one underlying call;
// fan-out across independent calls is unordered, so consumers must apply
// per-key last-write-wins.
type NotificationBus interface {
	Subscribe(event string, handler NotificationHandler)
}
