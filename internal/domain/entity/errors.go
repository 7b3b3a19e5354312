package entity

import "errors"

// Sentinel errors for the exchange domain. Services return these (possibly
// wrapped with fmt.Errorf("...: %w", err)) so that inbound adapters can map
// them to transport-level responses with errors.Is.
var (
	// ErrOfferNotFound is returned when no offer exists for a (seller, item id) key.
	ErrOfferNotFound = errors.New("offer not found")

	// ErrOfferNotAvailable is returned when an offer exists but is not
	// acceptable: already cancelled, already settled, or expired. Expiry
	// detected during an accept attempt additionally flips the offer to
	// CANCELLED before this error is returned.
	ErrOfferNotAvailable = errors.New("offer not available")

	// ErrAlreadyCancelled is returned when cancelling an offer that is
	// already CANCELLED (or absent, which behaves the same).
	ErrAlreadyCancelled = errors.New("offer already cancelled")

	// ErrInsufficientAllowance is returned when the buyer has pre-authorized
	// less than the converted payment amount.
	ErrInsufficientAllowance = errors.New("insufficient payment allowance")

	// ErrInsufficientAmount is returned when the attached native value is
	// below the converted payment amount.
	ErrInsufficientAmount = errors.New("insufficient attached amount")

	// ErrNotApproved is returned when the seller has not authorized the
	// engine to move the item asset.
	ErrNotApproved = errors.New("item transfer not approved")

	// ErrUnsupportedAsset is returned when a payment asset is not
	// whitelisted or has no configured price feed.
	ErrUnsupportedAsset = errors.New("unsupported payment asset")

	// ErrNotSeller is returned when the caller of a cancel is not the
	// offer's seller.
	ErrNotSeller = errors.New("caller is not the seller")

	// ErrNotOwner is returned when the caller of an admin operation is not
	// the configured owner.
	ErrNotOwner = errors.New("caller is not the owner")
)
