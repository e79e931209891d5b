// Package ledgerbridge funnels game-triggered marketplace writes into a
// single ordered, retried, confirmed transaction stream against an external
// ledger, and keeps a low-latency read model in sync with the events the
// ledger emits.
package ledgerbridge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationName identifies a contract mutation driven through the queue.
type OperationName string

const (
	OpGiveItems    OperationName = "give_items"
	OpRemoveItem   OperationName = "remove_item"
	OpTransferItem OperationName = "transfer_item"
	OpPutOffer     OperationName = "put_offer"
	OpBuyOffer     OperationName = "buy_offer"
	OpCancelOffer  OperationName = "cancel_offer"
)

// Valid reports whether the name is one of the queueable operations.
func (n OperationName) Valid() bool {
	switch n {
	case OpGiveItems, OpRemoveItem, OpTransferItem, OpPutOffer, OpBuyOffer, OpCancelOffer:
		return true
	}
	return false
}

// TouchesOffer reports whether the operation acts on an existing offer and
// therefore participates in speculative reservation.
func (n OperationName) TouchesOffer() bool {
	return n == OpBuyOffer || n == OpCancelOffer
}

// Read-only contract operations. These are never enqueued; the read path
// dry-runs them and the projector picks up the notifications they emit.
const (
	QueryBalanceOf        = "balance_of"
	QueryInventory        = "get_inventory"
	QueryAllOffers        = "get_all_offers"
	QueryOffer            = "get_offer"
	QueryMarketplaceOwner = "get_marketplace_owner"
)

// Operation is one requested ledger mutation. It is immutable once created;
// the correlation key is assigned by the caller before enqueue and is the
// only handle for querying the outcome later.
type Operation struct {
	Name           OperationName
	CorrelationKey uuid.UUID
	Marketplace    string

	// Args are the positional contract arguments, excluding the marketplace
	// (the encoder prepends it for marketplace-scoped operations). Allowed
	// element types: string (addresses and offer ids), integers, []byte.
	Args []any

	EnqueuedAt time.Time
}

func (op *Operation) String() string {
	return fmt.Sprintf("%s[%s]", op.Name, op.CorrelationKey)
}

// TransactionRecord links a correlation key to the ledger transaction that a
// successful submission produced. It is created only after the ledger
// returned a transaction handle; an operation that fails before submission
// leaves no record.
type TransactionRecord struct {
	CorrelationKey uuid.UUID `json:"correlationKey"`
	LedgerTxID     string    `json:"ledgerTxId"`
	Confirmed      bool      `json:"confirmed"`
	LastCheckedAt  time.Time `json:"lastCheckedAt"`
}

// Offer is one listed item-for-currency trade inside a marketplace.
type Offer struct {
	Owner  string `json:"owner"`
	ID     string `json:"id"`
	ItemID uint64 `json:"itemId"`
	Price  uint64 `json:"price"`
}

// Status is the outcome of a correlation-key lookup. Nil pointers mean
// "not yet known": TxFound is nil until a submission produced a record, and
// OperationComplete is nil until the transaction has been found on chain.
type Status struct {
	TxFound           *bool `json:"txFound,omitempty"`
	OperationComplete *bool `json:"operationComplete,omitempty"`
}

// AssetBalance is one synced wallet balance.
type AssetBalance struct {
	Asset  string
	Amount uint64
}

// ContractCall is a fully encoded invocation: the target contract, the
// operation name, and the positional parameters as raw bytes.
type ContractCall struct {
	Contract  string
	Operation string
	Params    [][]byte
}

// InvokeResult is what a dry run yields: the call script the ledger will
// execute and the fee estimate for submitting it for real.
type InvokeResult struct {
	Script   []byte
	Fee      uint64
	GasLimit uint64
	GasPrice uint64
}
