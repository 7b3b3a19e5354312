package entity

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OfferStatus is the lifecycle state of an offer.
type OfferStatus string

const (
	// OfferStatusOngoing means the offer can still be accepted.
	OfferStatusOngoing OfferStatus = "ONGOING"
	// OfferStatusCancelled means the offer was cancelled by the seller or
	// expired. Cancelled offers never return to ONGOING.
	OfferStatusCancelled OfferStatus = "CANCELLED"
)

// OfferKey identifies an offer slot. A seller holds at most one offer per
// item ID; creating a new offer for the same key overwrites the previous one.
type OfferKey struct {
	Seller common.Address
	ItemID uint64
}

// String returns a stable textual form of the key, used for keyed locking
// and log attributes.
func (k OfferKey) String() string {
	return fmt.Sprintf("%s:%d", k.Seller.Hex(), k.ItemID)
}

// Offer is a seller's standing intent to sell Amount units of a
// semi-fungible item at a fixed USD price until Deadline.
type Offer struct {
	Seller       common.Address
	ItemContract common.Address
	ItemID       uint64
	Amount       uint64
	Deadline     time.Time
	PriceUSD     uint64 // fixed-point USD with 8 fractional digits, for the whole Amount
	Status       OfferStatus
	CreatedAt    time.Time
}

// NewOffer creates a new ONGOING Offer with validation.
func NewOffer(seller, itemContract common.Address, itemID, amount uint64, deadline time.Time, priceUSD uint64) (*Offer, error) {
	o := &Offer{
		Seller:       seller,
		ItemContract: itemContract,
		ItemID:       itemID,
		Amount:       amount,
		Deadline:     deadline,
		PriceUSD:     priceUSD,
		Status:       OfferStatusOngoing,
		CreatedAt:    time.Now().UTC(),
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// validate checks that all fields have valid values.
func (o *Offer) validate() error {
	if o.Seller == (common.Address{}) {
		return fmt.Errorf("seller address must not be zero")
	}
	if o.ItemContract == (common.Address{}) {
		return fmt.Errorf("item contract address must not be zero")
	}
	if o.ItemID == 0 {
		return fmt.Errorf("item id must be positive")
	}
	if o.Amount == 0 {
		return fmt.Errorf("amount must be positive")
	}
	if !o.Deadline.After(time.Now()) {
		return fmt.Errorf("deadline must be in the future, got %s", o.Deadline)
	}
	if o.PriceUSD == 0 {
		return fmt.Errorf("price must be positive")
	}
	return nil
}

// Key returns the registry slot key for this offer.
func (o *Offer) Key() OfferKey {
	return OfferKey{Seller: o.Seller, ItemID: o.ItemID}
}

// Expired reports whether the offer's deadline has passed at the given time.
func (o *Offer) Expired(now time.Time) bool {
	return now.After(o.Deadline)
}

// Acceptable reports whether the offer can be accepted at the given time.
func (o *Offer) Acceptable(now time.Time) bool {
	return o.Status == OfferStatusOngoing && !o.Expired(now)
}
