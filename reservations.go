package ledgerbridge

import "sync"

// ReservationSet holds the offers currently claimed by an in-flight or
// about-to-be-queued write. The read path inserts on buy/cancel dry-runs,
// the submitter releases when the matching write finishes (success or
// failure), and the projector filters reserved offers out of every
// get_all_offers projection in between.
//
// A reservation whose dry run is never followed by an enqueue is never
// released: there is no expiry or reap path, so the offer stays hidden
// until the process restarts. Callers own keeping the reserve/enqueue pair
// tight.
type ReservationSet struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func NewReservationSet() *ReservationSet {
	return &ReservationSet{keys: make(map[string]struct{})}
}

// Offers are scoped per marketplace on the contract side, so the key is
// the concatenation.
func reservationKey(marketplace, offerID string) string {
	return marketplace + offerID
}

// Reserve claims an offer. Reserving an already reserved offer is a no-op.
func (s *ReservationSet) Reserve(marketplace, offerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[reservationKey(marketplace, offerID)] = struct{}{}
}

// Release drops the claim on an offer. Releasing an unreserved offer is a
// no-op.
func (s *ReservationSet) Release(marketplace, offerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, reservationKey(marketplace, offerID))
}

// ReleaseFor drops the claim made for op's offer argument, if it carries
// one. Called wherever a buy or cancel write finishes for good: confirmed,
// timed out, or abandoned by the queue.
func (s *ReservationSet) ReleaseFor(op *Operation) {
	if !op.Name.TouchesOffer() {
		return
	}
	if offerID, ok := OfferArg(op); ok {
		s.Release(op.Marketplace, offerID)
	}
}

// Contains reports whether the offer is currently claimed.
func (s *ReservationSet) Contains(marketplace, offerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[reservationKey(marketplace, offerID)]
	return ok
}

// Len returns the number of active reservations.
func (s *ReservationSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
