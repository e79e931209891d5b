package ledgerbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lootmarkets/ledgerbridge/cache"
)

// ErrNotProjected is returned by ProjectionStore reads when the ledger has
// not yet emitted the event that would populate the key.
var ErrNotProjected = errors.New("not yet projected")

// Key layout. The store is flat; every row the read model needs maps to one
// key here.
//
//	balance:<address>                          currency balance
//	inventory:<marketplace>:<address>          item id list
//	inventoryUpdatedAt:<marketplace>:<address> stamp for the above
//	owner:<marketplace>                        owning address
//	offers:<marketplace>                       open offer id list
//	timeOffersUpdated                          stamp for the above
//	<marketplace><offerId>                     offer detail
//	<opName><address>                          last operation result
//	<correlationKey>                           transaction record
//	tx<correlationKey>                         cached "was the tx found"
func keyBalance(address string) string  { return "balance:" + address }
func keyInventory(m, a string) string   { return "inventory:" + m + ":" + a }
func keyInventoryAt(m, a string) string { return "inventoryUpdatedAt:" + m + ":" + a }
func keyOwner(m string) string          { return "owner:" + m }
func keyOffers(m string) string         { return "offers:" + m }
func keyOffer(m, offerID string) string { return m + offerID }
func keyOpResult(op OperationName, address string) string {
	return string(op) + address
}
func keyTxRecord(k uuid.UUID) string { return k.String() }
func keyTxFound(k uuid.UUID) string  { return "tx" + k.String() }

const keyOffersUpdatedAt = "timeOffersUpdated"

// ProjectionStore wraps a cache.Store with typed accessors for the read
// model. The event projector is the only writer of projection rows; the
// submitter writes only transaction records, and the status lookup only the
// tx-found cache.
type ProjectionStore struct {
	store cache.Store
}

func NewProjectionStore(store cache.Store) *ProjectionStore {
	return &ProjectionStore{store: store}
}

func (p *ProjectionStore) SetBalance(address string, amount uint64) error {
	return p.store.Set(keyBalance(address), []byte(strconv.FormatUint(amount, 10)))
}

func (p *ProjectionStore) Balance(address string) (uint64, error) {
	raw, err := p.get(keyBalance(address))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

func (p *ProjectionStore) SetInventory(marketplace, address string, items []uint64, at time.Time) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := p.store.Set(keyInventory(marketplace, address), raw); err != nil {
		return err
	}
	return p.store.Set(keyInventoryAt(marketplace, address), []byte(at.UTC().Format(time.RFC3339)))
}

func (p *ProjectionStore) Inventory(marketplace, address string) ([]uint64, error) {
	raw, err := p.get(keyInventory(marketplace, address))
	if err != nil {
		return nil, err
	}
	var items []uint64
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode inventory %s/%s: %w", marketplace, address, err)
	}
	return items, nil
}

func (p *ProjectionStore) SetOwner(marketplace, address string) error {
	return p.store.Set(keyOwner(marketplace), []byte(address))
}

func (p *ProjectionStore) Owner(marketplace string) (string, error) {
	raw, err := p.get(keyOwner(marketplace))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (p *ProjectionStore) SetOffers(marketplace string, offerIDs []string, at time.Time) error {
	raw, err := json.Marshal(offerIDs)
	if err != nil {
		return err
	}
	if err := p.store.Set(keyOffers(marketplace), raw); err != nil {
		return err
	}
	return p.store.Set(keyOffersUpdatedAt, []byte(at.UTC().Format(time.RFC3339)))
}

// Offers returns the open offer list and the time it was last projected.
func (p *ProjectionStore) Offers(marketplace string) ([]string, time.Time, error) {
	raw, err := p.get(keyOffers(marketplace))
	if err != nil {
		return nil, time.Time{}, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode offers %s: %w", marketplace, err)
	}
	var at time.Time
	if stamp, err := p.get(keyOffersUpdatedAt); err == nil {
		at, _ = time.Parse(time.RFC3339, string(stamp))
	}
	return ids, at, nil
}

func (p *ProjectionStore) SetOffer(marketplace string, offer Offer) error {
	raw, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return p.store.Set(keyOffer(marketplace, offer.ID), raw)
}

func (p *ProjectionStore) Offer(marketplace, offerID string) (Offer, error) {
	raw, err := p.get(keyOffer(marketplace, offerID))
	if err != nil {
		return Offer{}, err
	}
	var offer Offer
	if err := json.Unmarshal(raw, &offer); err != nil {
		return Offer{}, fmt.Errorf("decode offer %s/%s: %w", marketplace, offerID, err)
	}
	return offer, nil
}

func (p *ProjectionStore) SetOperationResult(op OperationName, address string, success bool) error {
	return p.store.Set(keyOpResult(op, address), encodeBool(success))
}

func (p *ProjectionStore) OperationResult(op OperationName, address string) (bool, error) {
	raw, err := p.get(keyOpResult(op, address))
	if err != nil {
		return false, err
	}
	return decodeBool(raw), nil
}

func (p *ProjectionStore) SetTransactionRecord(rec TransactionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.store.Set(keyTxRecord(rec.CorrelationKey), raw)
}

func (p *ProjectionStore) TransactionRecord(key uuid.UUID) (TransactionRecord, error) {
	raw, err := p.get(keyTxRecord(key))
	if err != nil {
		return TransactionRecord{}, err
	}
	var rec TransactionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction record %s: %w", key, err)
	}
	return rec, nil
}

func (p *ProjectionStore) SetTxFound(key uuid.UUID, found bool) error {
	return p.store.Set(keyTxFound(key), encodeBool(found))
}

func (p *ProjectionStore) TxFound(key uuid.UUID) (bool, error) {
	raw, err := p.get(keyTxFound(key))
	if err != nil {
		return false, err
	}
	return decodeBool(raw), nil
}

func (p *ProjectionStore) get(key string) ([]byte, error) {
	raw, err := p.store.Get(key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotProjected
	}
	return raw, err
}

func encodeBool(v bool) []byte {
	if v {
		return []byte("1")
	}
	return []byte("0")
}

func decodeBool(raw []byte) bool {
	return len(raw) > 0 && raw[0] == '1'
}
