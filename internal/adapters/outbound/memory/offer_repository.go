// Package memory provides in-memory implementations of the outbound ports.
// Used by tests and by single-process deployments without external storage.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/domain/entity"
	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time check that OfferRepository implements outbound.OfferRepository.
var _ outbound.OfferRepository = (*OfferRepository)(nil)

// OfferRepository is an in-memory implementation of the offer registry.
// All operations are safe for concurrent use.
type OfferRepository struct {
	mu     sync.RWMutex
	offers map[entity.OfferKey]*entity.Offer
}

// NewOfferRepository creates a new in-memory offer repository.
func NewOfferRepository() *OfferRepository {
	return &OfferRepository{
		offers: make(map[entity.OfferKey]*entity.Offer),
	}
}

// Put upserts the offer, overwriting any previous offer at the same key.
func (r *OfferRepository) Put(ctx context.Context, offer *entity.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *offer
	r.offers[offer.Key()] = &cp
	return nil
}

// Get returns a copy of the offer at the key, or entity.ErrOfferNotFound.
func (r *OfferRepository) Get(ctx context.Context, seller common.Address, itemID uint64) (*entity.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	offer, ok := r.offers[entity.OfferKey{Seller: seller, ItemID: itemID}]
	if !ok {
		return nil, entity.ErrOfferNotFound
	}
	cp := *offer
	return &cp, nil
}

// MarkCancelled flips the offer to CANCELLED; absent or already cancelled
// slots return entity.ErrAlreadyCancelled.
func (r *OfferRepository) MarkCancelled(ctx context.Context, seller common.Address, itemID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	offer, ok := r.offers[entity.OfferKey{Seller: seller, ItemID: itemID}]
	if !ok || offer.Status == entity.OfferStatusCancelled {
		return entity.ErrAlreadyCancelled
	}
	offer.Status = entity.OfferStatusCancelled
	return nil
}

// Remove deletes the slot.
func (r *OfferRepository) Remove(ctx context.Context, seller common.Address, itemID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.offers, entity.OfferKey{Seller: seller, ItemID: itemID})
	return nil
}

// ListBySeller returns copies of all offers for the seller, ordered by item id.
func (r *OfferRepository) ListBySeller(ctx context.Context, seller common.Address) ([]*entity.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entity.Offer
	for key, offer := range r.offers {
		if key.Seller == seller {
			cp := *offer
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// HealthCheck verifies the repository is operational.
func (r *OfferRepository) HealthCheck(ctx context.Context) error {
	return nil
}
