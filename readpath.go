package ledgerbridge

import (
	"context"
	"log/slog"
	"time"
)

// ReadQueryPath answers synchronous queries with dry-run invokes, entirely
// independent of the write queue. The notifications a dry run emits are
// projected before the ledger call returns, so reading the projection right
// after is fresh without ever waiting on the queue.
type ReadQueryPath struct {
	contract     string
	marketplace  string
	ledger       LedgerClient
	store        *ProjectionStore
	reservations *ReservationSet
	logger       *slog.Logger
}

func NewReadQueryPath(contract, marketplace string, ledger LedgerClient, store *ProjectionStore, reservations *ReservationSet, logger *slog.Logger) *ReadQueryPath {
	return &ReadQueryPath{
		contract:     contract,
		marketplace:  marketplace,
		ledger:       ledger,
		store:        store,
		reservations: reservations,
		logger:       logger,
	}
}

func (r *ReadQueryPath) dryRun(ctx context.Context, operation string, scoped bool, args ...any) error {
	params, err := EncodeParams(r.marketplace, scoped, args)
	if err != nil {
		return err
	}
	call := ContractCall{Contract: r.contract, Operation: operation, Params: params}
	if _, err := r.ledger.TestInvoke(ctx, call); err != nil {
		r.logger.Warn("dry run failed", "operation", operation, "error", err)
		return NewSubmissionError(ErrCodeDryRunRejected, "dry run "+operation, err)
	}
	return nil
}

// Balance dry-runs balance_of and returns the projected balance.
func (r *ReadQueryPath) Balance(ctx context.Context, address string) (uint64, error) {
	if err := r.dryRun(ctx, QueryBalanceOf, false, address); err != nil {
		return 0, err
	}
	return r.store.Balance(address)
}

// Inventory dry-runs get_inventory and returns the projected item list.
func (r *ReadQueryPath) Inventory(ctx context.Context, address string) ([]uint64, error) {
	if err := r.dryRun(ctx, QueryInventory, true, address); err != nil {
		return nil, err
	}
	return r.store.Inventory(r.marketplace, address)
}

// Offers dry-runs get_all_offers and returns the projected open-offer list
// with its projection time. Offers under speculative reservation are
// already filtered out.
func (r *ReadQueryPath) Offers(ctx context.Context) ([]string, time.Time, error) {
	if err := r.dryRun(ctx, QueryAllOffers, true); err != nil {
		return nil, time.Time{}, err
	}
	return r.store.Offers(r.marketplace)
}

// Offer dry-runs get_offer for one offer id.
func (r *ReadQueryPath) Offer(ctx context.Context, offerID string) (Offer, error) {
	if err := r.dryRun(ctx, QueryOffer, true, offerID); err != nil {
		return Offer{}, err
	}
	return r.store.Offer(r.marketplace, offerID)
}

// Owner dry-runs get_marketplace_owner and returns the owning address.
func (r *ReadQueryPath) Owner(ctx context.Context) (string, error) {
	if err := r.dryRun(ctx, QueryMarketplaceOwner, false, r.marketplace); err != nil {
		return "", err
	}
	return r.store.Owner(r.marketplace)
}

// ReserveBuy dry-runs buy_offer and, the dry run accepted, claims the offer
// so it stops appearing in offer lists. The caller is expected to enqueue
// the matching write promptly: the claim is only released when that write
// finishes, and a claim with no write behind it stays forever.
func (r *ReadQueryPath) ReserveBuy(ctx context.Context, address, offerID string) error {
	return r.reserve(ctx, OpBuyOffer, address, offerID)
}

// ReserveCancel is ReserveBuy for cancel_offer.
func (r *ReadQueryPath) ReserveCancel(ctx context.Context, address, offerID string) error {
	return r.reserve(ctx, OpCancelOffer, address, offerID)
}

func (r *ReadQueryPath) reserve(ctx context.Context, op OperationName, address, offerID string) error {
	if !IsOfferID(offerID) {
		return &ProtocolError{Message: "not an offer id: " + offerID}
	}
	if err := r.dryRun(ctx, string(op), true, address, offerID); err != nil {
		return err
	}
	r.reservations.Reserve(r.marketplace, offerID)
	r.logger.Info("offer reserved", "operation", op, "offer", offerID, "address", address)
	return nil
}
