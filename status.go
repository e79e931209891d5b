package ledgerbridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// StatusLookup resolves a correlation key to the outcome of its operation.
type StatusLookup struct {
	ledger LedgerClient
	store  *ProjectionStore
	logger *slog.Logger
}

func NewStatusLookup(ledger LedgerClient, store *ProjectionStore, logger *slog.Logger) *StatusLookup {
	return &StatusLookup{ledger: ledger, store: store, logger: logger}
}

// Search reports whether the operation behind the key reached the ledger
// and, if so, whether the contract completed it. Both fields stay unset
// until a submission produced a transaction record; OperationComplete stays
// unset until the transaction is found on chain. The address and operation
// name must be the ones the operation was enqueued with, since results are
// projected under that pair.
func (l *StatusLookup) Search(ctx context.Context, key uuid.UUID, address string, op OperationName) (Status, error) {
	record, err := l.store.TransactionRecord(key)
	if errors.Is(err, ErrNotProjected) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	found, _, err := l.ledger.GetTransaction(ctx, record.LedgerTxID)
	if err != nil {
		return Status{}, err
	}
	if err := l.store.SetTxFound(key, found); err != nil {
		l.logger.Warn("caching tx-found flag failed", "correlationKey", key, "error", err)
	}
	record.LastCheckedAt = time.Now().UTC()
	record.Confirmed = record.Confirmed || found
	if err := l.store.SetTransactionRecord(record); err != nil {
		l.logger.Warn("updating transaction record failed", "correlationKey", key, "error", err)
	}

	status := Status{TxFound: &found}
	if !found {
		return status, nil
	}
	complete, err := l.store.OperationResult(op, address)
	if errors.Is(err, ErrNotProjected) {
		return status, nil
	}
	if err != nil {
		return Status{}, err
	}
	status.OperationComplete = &complete
	return status, nil
}
