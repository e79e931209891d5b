package ledgerbridge

import (
	"encoding/hex"
	"log/slog"
	"time"
)

// AddressDecoder turns a raw script-hash payload into a display address.
// The default renders hex; ledger adapters install their own.
type AddressDecoder func(scriptHash []byte) string

func hexAddress(scriptHash []byte) string {
	return "0x" + hex.EncodeToString(scriptHash)
}

// EventProjector is the sole writer of the projection read model. It
// subscribes one handler per event name and applies each notification as a
// last-write-wins upsert. Notifications arrive for every invoke, dry-run or
// real, so a dry run refreshes the read model synchronously.
//
// Marketplace-scoped events for a marketplace other than the one this
// deployment serves are dropped; general events carry no marketplace and
// bypass that filter.
type EventProjector struct {
	marketplace   string
	store         *ProjectionStore
	reservations  *ReservationSet
	logger        *slog.Logger
	decodeAddress AddressDecoder
	now           func() time.Time
}

// ProjectorOption configures the projector.
type ProjectorOption func(*EventProjector)

// WithAddressDecoder installs the ledger adapter's script-hash-to-address
// conversion.
func WithAddressDecoder(decode AddressDecoder) ProjectorOption {
	return func(p *EventProjector) {
		p.decodeAddress = decode
	}
}

func NewEventProjector(marketplace string, store *ProjectionStore, reservations *ReservationSet, logger *slog.Logger, opts ...ProjectorOption) *EventProjector {
	p := &EventProjector{
		marketplace:   marketplace,
		store:         store,
		reservations:  reservations,
		logger:        logger,
		decodeAddress: hexAddress,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register subscribes the projector's handlers on the bus.
func (p *EventProjector) Register(bus NotificationBus) {
	bus.Subscribe(QueryBalanceOf, p.onBalance)
	bus.Subscribe(QueryMarketplaceOwner, p.onOwner)
	bus.Subscribe(QueryInventory, p.onInventory)
	bus.Subscribe(QueryAllOffers, p.onAllOffers)
	bus.Subscribe(QueryOffer, p.onOffer)
	for _, op := range []OperationName{OpGiveItems, OpRemoveItem, OpTransferItem, OpPutOffer, OpBuyOffer, OpCancelOffer} {
		bus.Subscribe(string(op), p.onOperationResult(op))
	}
}

// balance_of is a general event: [scriptHash, amount].
func (p *EventProjector) onBalance(payload [][]byte) {
	if len(payload) < 2 {
		p.dropMalformed(QueryBalanceOf, payload)
		return
	}
	address := p.decodeAddress(payload[0])
	amount, err := DecodeUintLE(payload[1])
	if err != nil {
		p.dropMalformed(QueryBalanceOf, payload)
		return
	}
	if err := p.store.SetBalance(address, amount); err != nil {
		p.logger.Error("project balance failed", "address", address, "error", err)
		return
	}
	p.logger.Debug("projected balance", "address", address, "amount", amount)
}

// get_marketplace_owner is a general event: [marketplace, scriptHash].
func (p *EventProjector) onOwner(payload [][]byte) {
	if len(payload) < 2 {
		p.dropMalformed(QueryMarketplaceOwner, payload)
		return
	}
	marketplace := string(payload[0])
	address := p.decodeAddress(payload[1])
	if err := p.store.SetOwner(marketplace, address); err != nil {
		p.logger.Error("project owner failed", "marketplace", marketplace, "error", err)
		return
	}
	p.logger.Debug("projected owner", "marketplace", marketplace, "address", address)
}

// get_inventory: [marketplace, scriptHash, item, item, ...].
func (p *EventProjector) onInventory(payload [][]byte) {
	if len(payload) < 2 {
		p.dropMalformed(QueryInventory, payload)
		return
	}
	if !p.ours(payload[0]) {
		return
	}
	address := p.decodeAddress(payload[1])
	items := make([]uint64, 0, len(payload)-2)
	for _, raw := range payload[2:] {
		item, err := DecodeUintLE(raw)
		if err != nil {
			p.dropMalformed(QueryInventory, payload)
			return
		}
		items = append(items, item)
	}
	if err := p.store.SetInventory(p.marketplace, address, items, p.now()); err != nil {
		p.logger.Error("project inventory failed", "address", address, "error", err)
		return
	}
	p.logger.Debug("projected inventory", "address", address, "items", len(items))
}

// get_all_offers: [marketplace, wireOfferID, wireOfferID, ...]. Offers held
// in the reservation set are filtered out before the list is projected, so
// queued buys and cancels never show as available.
func (p *EventProjector) onAllOffers(payload [][]byte) {
	if len(payload) < 1 {
		p.dropMalformed(QueryAllOffers, payload)
		return
	}
	if !p.ours(payload[0]) {
		return
	}
	visible := make([]string, 0, len(payload)-1)
	for _, raw := range payload[1:] {
		offerID, err := DecodeOfferID(raw)
		if err != nil {
			p.dropMalformed(QueryAllOffers, payload)
			return
		}
		if p.reservations.Contains(p.marketplace, offerID) {
			continue
		}
		visible = append(visible, offerID)
	}
	if err := p.store.SetOffers(p.marketplace, visible, p.now()); err != nil {
		p.logger.Error("project offers failed", "error", err)
		return
	}
	p.logger.Debug("projected offers", "visible", len(visible), "total", len(payload)-1)
}

// get_offer: [marketplace, ownerScriptHash, wireOfferID, itemID, price].
func (p *EventProjector) onOffer(payload [][]byte) {
	if len(payload) < 5 {
		p.dropMalformed(QueryOffer, payload)
		return
	}
	if !p.ours(payload[0]) {
		return
	}
	offerID, err := DecodeOfferID(payload[2])
	if err != nil {
		p.dropMalformed(QueryOffer, payload)
		return
	}
	itemID, err := DecodeUintLE(payload[3])
	if err != nil {
		p.dropMalformed(QueryOffer, payload)
		return
	}
	price, err := DecodeUintLE(payload[4])
	if err != nil {
		p.dropMalformed(QueryOffer, payload)
		return
	}
	offer := Offer{
		Owner:  p.decodeAddress(payload[1]),
		ID:     offerID,
		ItemID: itemID,
		Price:  price,
	}
	if err := p.store.SetOffer(p.marketplace, offer); err != nil {
		p.logger.Error("project offer failed", "offer", offerID, "error", err)
		return
	}
	p.logger.Debug("projected offer", "offer", offerID, "price", price)
}

// Every write operation notifies its outcome: [marketplace, scriptHash,
// success].
func (p *EventProjector) onOperationResult(op OperationName) NotificationHandler {
	return func(payload [][]byte) {
		if len(payload) < 3 {
			p.dropMalformed(string(op), payload)
			return
		}
		if !p.ours(payload[0]) {
			return
		}
		address := p.decodeAddress(payload[1])
		success := len(payload[2]) > 0 && payload[2][0] != 0
		if err := p.store.SetOperationResult(op, address, success); err != nil {
			p.logger.Error("project operation result failed", "operation", op, "address", address, "error", err)
			return
		}
		p.logger.Debug("projected operation result", "operation", op, "address", address, "success", success)
	}
}

func (p *EventProjector) ours(marketplace []byte) bool {
	return string(marketplace) == p.marketplace
}

func (p *EventProjector) dropMalformed(event string, payload [][]byte) {
	p.logger.Warn("dropping malformed notification", "event", event, "fields", len(payload))
}
