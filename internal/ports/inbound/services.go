// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/domain/entity"
)

// CreateOfferRequest carries the fields of a new offer.
type CreateOfferRequest struct {
	Seller       common.Address
	ItemContract common.Address
	ItemID       uint64
	Amount       uint64
	Deadline     time.Time
	PriceUSD     uint64 // fixed-point USD, 8 fractional digits
}

// AcceptResult reports the amounts a settlement moved, in the payment
// asset's native units.
type AcceptResult struct {
	FinalAmount *big.Int // total payment pulled from the buyer
	FeeAmount   *big.Int // portion forwarded to the fee recipient
}

// ExchangeService defines the offer lifecycle use cases. Inbound adapters
// (HTTP handlers, CLI) call these methods.
type ExchangeService interface {
	// CreateOffer validates and stores a new ONGOING offer, silently
	// overwriting any previous offer for the same (seller, item id).
	CreateOffer(ctx context.Context, req CreateOfferRequest) (*entity.Offer, error)

	// AcceptOfferWithTokens settles the offer against a whitelisted
	// fungible payment asset the buyer has pre-authorized.
	AcceptOfferWithTokens(ctx context.Context, buyer, seller common.Address, itemID uint64, paymentToken common.Address) (*AcceptResult, error)

	// AcceptOfferWithNative settles the offer against the wrapped native
	// currency; attached is the native value sent along with the call.
	AcceptOfferWithNative(ctx context.Context, buyer, seller common.Address, itemID uint64, attached *big.Int) (*AcceptResult, error)

	// CancelOffer marks the caller's offer CANCELLED. The caller must be
	// the offer's seller.
	CancelOffer(ctx context.Context, caller, seller common.Address, itemID uint64) error

	// GetOffer returns the offer at the key, or entity.ErrOfferNotFound.
	GetOffer(ctx context.Context, seller common.Address, itemID uint64) (*entity.Offer, error)

	// ListSellerOffers returns all stored offers for a seller.
	ListSellerOffers(ctx context.Context, seller common.Address) ([]*entity.Offer, error)

	// Ping reports whether the service and its storage are reachable.
	Ping(ctx context.Context) error
}

// AdminService defines the owner-restricted configuration use cases. The
// exchange engine itself only ever reads the resulting configuration.
type AdminService interface {
	// SetFee updates the fee divisor (fee = amount / divisor). The caller
	// must be the configured owner; a zero divisor is rejected.
	SetFee(ctx context.Context, caller common.Address, divisor uint64) error

	// SetFeeRecipient updates the address fees are forwarded to.
	SetFeeRecipient(ctx context.Context, caller, recipient common.Address) error

	// SetWhitelistedPaymentToken upserts a payment-asset whitelist entry.
	SetWhitelistedPaymentToken(ctx context.Context, caller common.Address, token *entity.PaymentToken) error
}
