// Package outbound contains the secondary/outbound ports.
// These interfaces are implemented by infrastructure adapters.
package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/domain/entity"
)

// OfferRepository is the registry of live offers, keyed by (seller, item id).
// It stores at most one offer per key; Put silently overwrites.
//
// The repository enforces only storage-level rules (slot uniqueness, the
// cancelled-is-terminal transition). Field validity and the accept-path state
// machine are the exchange service's responsibility.
type OfferRepository interface {
	// Put upserts the offer into its (seller, item id) slot, replacing any
	// previous offer at that key.
	Put(ctx context.Context, offer *entity.Offer) error

	// Get returns the offer at the key, or entity.ErrOfferNotFound if the
	// slot is empty. Callers treat an absent offer the same as a cancelled
	// one for all downstream checks.
	Get(ctx context.Context, seller common.Address, itemID uint64) (*entity.Offer, error)

	// MarkCancelled transitions the offer to CANCELLED. Returns
	// entity.ErrAlreadyCancelled if the slot is empty or the offer is
	// already cancelled. The transition is one-way.
	MarkCancelled(ctx context.Context, seller common.Address, itemID uint64) error

	// Remove deletes the slot. Used after a successful settlement.
	Remove(ctx context.Context, seller common.Address, itemID uint64) error

	// ListBySeller returns all offers currently stored for a seller,
	// in ascending item id order.
	ListBySeller(ctx context.Context, seller common.Address) ([]*entity.Offer, error)

	// HealthCheck verifies the repository is operational.
	HealthCheck(ctx context.Context) error
}
