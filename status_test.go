package ledgerbridge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchUnknownKey(t *testing.T) {
	store := newTestStore(t)
	lookup := NewStatusLookup(&fakeLedger{}, store, testLogger(t))

	status, err := lookup.Search(context.Background(), uuid.New(), "alice", OpGiveItems)
	require.NoError(t, err)
	assert.Nil(t, status.TxFound)
	assert.Nil(t, status.OperationComplete)
}

func TestSearchFoundAndComplete(t *testing.T) {
	store := newTestStore(t)
	key := uuid.New()
	require.NoError(t, store.SetTransactionRecord(TransactionRecord{
		CorrelationKey: key,
		LedgerTxID:     "0xabc",
	}))
	require.NoError(t, store.SetOperationResult(OpGiveItems, "alice", true))

	lookup := NewStatusLookup(&fakeLedger{}, store, testLogger(t))
	status, err := lookup.Search(context.Background(), key, "alice", OpGiveItems)
	require.NoError(t, err)

	require.NotNil(t, status.TxFound)
	assert.True(t, *status.TxFound)
	require.NotNil(t, status.OperationComplete)
	assert.True(t, *status.OperationComplete)
}

func TestSearchFoundButResultNotProjected(t *testing.T) {
	store := newTestStore(t)
	key := uuid.New()
	require.NoError(t, store.SetTransactionRecord(TransactionRecord{
		CorrelationKey: key,
		LedgerTxID:     "0xabc",
	}))

	lookup := NewStatusLookup(&fakeLedger{}, store, testLogger(t))
	status, err := lookup.Search(context.Background(), key, "alice", OpGiveItems)
	require.NoError(t, err)

	require.NotNil(t, status.TxFound)
	assert.True(t, *status.TxFound)
	assert.Nil(t, status.OperationComplete)
}

func TestSearchNotYetOnChain(t *testing.T) {
	store := newTestStore(t)
	key := uuid.New()
	require.NoError(t, store.SetTransactionRecord(TransactionRecord{
		CorrelationKey: key,
		LedgerTxID:     "0xabc",
	}))
	require.NoError(t, store.SetOperationResult(OpGiveItems, "alice", true))

	ledger := &fakeLedger{
		getTransaction: func(context.Context, string) (bool, uint64, error) {
			return false, 0, nil
		},
	}
	lookup := NewStatusLookup(ledger, store, testLogger(t))
	status, err := lookup.Search(context.Background(), key, "alice", OpGiveItems)
	require.NoError(t, err)

	require.NotNil(t, status.TxFound)
	assert.False(t, *status.TxFound)
	// Completion is unknowable until the transaction is observed.
	assert.Nil(t, status.OperationComplete)
}

// Search refreshes the record it read: the tx-found cache and the
// confirmation flag track what the ledger last said.
func TestSearchUpdatesRecord(t *testing.T) {
	store := newTestStore(t)
	key := uuid.New()
	stale := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetTransactionRecord(TransactionRecord{
		CorrelationKey: key,
		LedgerTxID:     "0xabc",
		LastCheckedAt:  stale,
	}))

	lookup := NewStatusLookup(&fakeLedger{}, store, testLogger(t))
	_, err := lookup.Search(context.Background(), key, "alice", OpGiveItems)
	require.NoError(t, err)

	rec, err := store.TransactionRecord(key)
	require.NoError(t, err)
	assert.True(t, rec.Confirmed)
	assert.True(t, rec.LastCheckedAt.After(stale))

	found, err := store.TxFound(key)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSearchIdempotent(t *testing.T) {
	store := newTestStore(t)
	key := uuid.New()
	require.NoError(t, store.SetTransactionRecord(TransactionRecord{
		CorrelationKey: key,
		LedgerTxID:     "0xabc",
	}))
	require.NoError(t, store.SetOperationResult(OpBuyOffer, "alice", false))

	lookup := NewStatusLookup(&fakeLedger{}, store, testLogger(t))
	first, err := lookup.Search(context.Background(), key, "alice", OpBuyOffer)
	require.NoError(t, err)
	second, err := lookup.Search(context.Background(), key, "alice", OpBuyOffer)
	require.NoError(t, err)

	assert.Equal(t, *first.TxFound, *second.TxFound)
	assert.Equal(t, *first.OperationComplete, *second.OperationComplete)
	assert.False(t, *second.OperationComplete)
}
