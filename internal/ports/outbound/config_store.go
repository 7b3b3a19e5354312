package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/domain/entity"
)

// ConfigStore holds the marketplace configuration: the fee divisor, fee
// recipient, owner, wrapped-native address and the payment-asset whitelist
// with per-asset price feed routing.
//
// The exchange engine only reads from this store; mutation happens through
// the owner-gated admin service.
type ConfigStore interface {
	// MarketConfig returns the current configuration snapshot.
	MarketConfig(ctx context.Context) (*entity.MarketConfig, error)

	// PaymentToken returns the whitelist entry for the asset, or
	// entity.ErrUnsupportedAsset if the asset is unknown. Callers must also
	// check the Enabled flag: a disabled entry is not whitelisted.
	PaymentToken(ctx context.Context, asset common.Address) (*entity.PaymentToken, error)

	// ListPaymentTokens returns all whitelist entries, enabled or not.
	ListPaymentTokens(ctx context.Context) ([]*entity.PaymentToken, error)

	// SetFeeDivisor updates the fee divisor and bumps the config version.
	// A zero divisor is rejected.
	SetFeeDivisor(ctx context.Context, divisor uint64) error

	// SetFeeRecipient updates the fee recipient and bumps the config version.
	SetFeeRecipient(ctx context.Context, recipient common.Address) error

	// SetPaymentToken upserts a whitelist entry and bumps the config version.
	SetPaymentToken(ctx context.Context, token *entity.PaymentToken) error
}
