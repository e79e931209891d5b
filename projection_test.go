package ledgerbridge

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lootmarkets/ledgerbridge/cache"
)

func newTestStore(t *testing.T) *ProjectionStore {
	t.Helper()
	return NewProjectionStore(cache.NewMemory())
}

func TestProjectionStoreBalance(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Balance("alice")
	assert.ErrorIs(t, err, ErrNotProjected)

	require.NoError(t, store.SetBalance("alice", 1234))
	got, err := store.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), got)
}

func TestProjectionStoreInventory(t *testing.T) {
	store := newTestStore(t)
	at := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SetInventory("LootMarket", "alice", []uint64{1, 2, 3}, at))
	items, err := store.Inventory("LootMarket", "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, items)

	_, err = store.Inventory("LootMarket", "bob")
	assert.ErrorIs(t, err, ErrNotProjected)
}

func TestProjectionStoreOffers(t *testing.T) {
	store := newTestStore(t)
	at := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := store.Offers("LootMarket")
	assert.ErrorIs(t, err, ErrNotProjected)

	require.NoError(t, store.SetOffers("LootMarket", []string{"offer0", "offer2"}, at))
	ids, stamped, err := store.Offers("LootMarket")
	require.NoError(t, err)
	assert.Equal(t, []string{"offer0", "offer2"}, ids)
	assert.Equal(t, at, stamped)
}

func TestProjectionStoreOffer(t *testing.T) {
	store := newTestStore(t)
	offer := Offer{Owner: "alice", ID: "offer1", ItemID: 42, Price: 500}

	require.NoError(t, store.SetOffer("LootMarket", offer))
	got, err := store.Offer("LootMarket", "offer1")
	require.NoError(t, err)
	assert.Equal(t, offer, got)

	_, err = store.Offer("LootMarket", "offer9")
	assert.ErrorIs(t, err, ErrNotProjected)
}

func TestProjectionStoreOwner(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SetOwner("LootMarket", "0xowner"))
	got, err := store.Owner("LootMarket")
	require.NoError(t, err)
	assert.Equal(t, "0xowner", got)
}

func TestProjectionStoreOperationResult(t *testing.T) {
	store := newTestStore(t)

	_, err := store.OperationResult(OpGiveItems, "alice")
	assert.ErrorIs(t, err, ErrNotProjected)

	require.NoError(t, store.SetOperationResult(OpGiveItems, "alice", true))
	ok, err := store.OperationResult(OpGiveItems, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	// Results are keyed per operation and address.
	_, err = store.OperationResult(OpBuyOffer, "alice")
	assert.ErrorIs(t, err, ErrNotProjected)

	require.NoError(t, store.SetOperationResult(OpGiveItems, "alice", false))
	ok, err = store.OperationResult(OpGiveItems, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProjectionStoreTransactionRecord(t *testing.T) {
	store := newTestStore(t)
	key := uuid.New()

	_, err := store.TransactionRecord(key)
	assert.ErrorIs(t, err, ErrNotProjected)

	rec := TransactionRecord{
		CorrelationKey: key,
		LedgerTxID:     "0xabc",
		Confirmed:      true,
		LastCheckedAt:  time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SetTransactionRecord(rec))
	got, err := store.TransactionRecord(key)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestProjectionStoreTxFound(t *testing.T) {
	store := newTestStore(t)
	key := uuid.New()

	_, err := store.TxFound(key)
	assert.ErrorIs(t, err, ErrNotProjected)

	require.NoError(t, store.SetTxFound(key, true))
	found, err := store.TxFound(key)
	require.NoError(t, err)
	assert.True(t, found)
}
